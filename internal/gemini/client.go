package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/metrics"
)

const apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Result is one parsed generation: a personalized message for a contact.
type Result struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ErrQuotaExceeded indicates the provider rejected the call for quota or
// rate-limit reasons. The key that made the call should be rotated out.
var ErrQuotaExceeded = errors.New("gemini: quota exceeded")

// ParseError indicates the model responded but the text did not split into
// the expected email === name === message form. Not retriable: the same
// prompt would fail the same way.
type ParseError struct {
	Segments int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gemini: response split into %d segments, want 3", e.Segments)
}

// IsQuota reports whether err is a quota/rate-limit failure.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsParse reports whether err is a response-format failure.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Client abstracts the generation service for one contact record.
type Client interface {
	Generate(ctx context.Context, record map[string]string, apiKey string) (Result, error)
}

// HTTPClient implements Client against the Gemini generateContent API.
type HTTPClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Gemini client for the given model.
func NewClient(model string) (*HTTPClient, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &HTTPClient{
		model:   model,
		baseURL: apiBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type generateRequest struct {
	Contents []reqContent `json:"contents"`
}

type reqContent struct {
	Parts []reqPart `json:"parts"`
}

type reqPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []reqPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate issues one generation call for the record using the given key and
// parses the three-segment response. It never touches the usage ledger; the
// caller accounts for the attempt.
func (c *HTTPClient) Generate(ctx context.Context, record map[string]string, apiKey string) (Result, error) {
	prompt := BuildPrompt(record)
	payload, err := json.Marshal(generateRequest{
		Contents: []reqContent{{Parts: []reqPart{{Text: prompt}}}},
	})
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveGenerationDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return Result{}, fmt.Errorf("gemini request timeout: %w", err)
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, fmt.Errorf("%w: status 429", ErrQuotaExceeded)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("gemini response parse: %w", err)
	}
	if parsed.Error != nil {
		if isQuotaAPIError(parsed.Error.Code, parsed.Error.Status, parsed.Error.Message) {
			return Result{}, fmt.Errorf("%w: %s (%s)", ErrQuotaExceeded, parsed.Error.Message, parsed.Error.Status)
		}
		return Result{}, fmt.Errorf("gemini error: %s (%s)", parsed.Error.Message, parsed.Error.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("gemini status %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 {
		return Result{}, fmt.Errorf("gemini response missing candidates")
	}

	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return ParseResult(text.String())
}

// ParseResult splits a raw model response into {email, name, message}.
// Code-fence markup is stripped before splitting on the literal separator.
func ParseResult(raw string) (Result, error) {
	cleaned := raw
	for _, marker := range []string{"```text", "```json", "```"} {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}

	fields := strings.Split(strings.TrimSpace(cleaned), "===")
	if len(fields) != 3 {
		return Result{}, &ParseError{Segments: len(fields)}
	}

	res := Result{
		Email:   strings.TrimSpace(fields[0]),
		Name:    strings.TrimSpace(fields[1]),
		Message: strings.TrimSpace(fields[2]),
	}
	if res.Email == "" || res.Name == "" || res.Message == "" {
		return Result{}, &ParseError{Segments: len(fields)}
	}
	return res, nil
}

func isQuotaAPIError(code int, status, message string) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	if strings.EqualFold(status, "RESOURCE_EXHAUSTED") {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit")
}

var _ Client = (*HTTPClient)(nil)
