package listmonk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/telemetry"
)

const (
	maxAttempts = 3
	baseDelay   = 2 * time.Second
)

// Client pushes subscriber CSVs into a listmonk instance over its admin API.
type Client struct {
	baseURL    string
	username   string
	token      string
	listID     int
	httpClient *http.Client

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a listmonk client. baseURL is the instance root, without a
// trailing slash.
func New(baseURL, username, token string, listID int) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("LISTMONK_URL is required")
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("LISTMONK_USERNAME and LISTMONK_TOKEN are required")
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		token:    token,
		listID:   listID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type importParams struct {
	Mode      string `json:"mode"`
	Delim     string `json:"delim"`
	Lists     []int  `json:"lists"`
	Overwrite bool   `json:"overwrite"`
}

// ImportSubscribers uploads a listmonk-format CSV as a subscriber import for
// the configured list. 5xx and transport failures are retried with backoff;
// 4xx responses fail immediately since a retry would not change the outcome.
func (c *Client) ImportSubscribers(ctx context.Context, fileName string, csvData []byte) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := c.importOnce(ctx, fileName, csvData)
		if err == nil {
			return nil
		}
		lastErr = err

		if status >= 400 && status < 500 {
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay << (attempt - 1)
			telemetry.Warn("listmonk.import_retry", map[string]any{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			})
			if sleepErr := c.wait(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("listmonk import failed after %d attempts: %w", maxAttempts, lastErr)
}

// importOnce issues a single multipart import request. The returned status is
// zero when the request never reached the server.
func (c *Client) importOnce(ctx context.Context, fileName string, csvData []byte) (int, error) {
	params, err := json.Marshal(importParams{
		Mode:      "subscribe",
		Delim:     ",",
		Lists:     []int{c.listID},
		Overwrite: true,
	})
	if err != nil {
		return 0, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("params", string(params)); err != nil {
		return 0, err
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(csvData); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	url := c.baseURL + "/api/import/subscribers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(c.username, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("listmonk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, fmt.Errorf("listmonk import status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
