package process

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/config"
	localstore "github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/object/local"
)

type stubClient struct{}

func (stubClient) Generate(ctx context.Context, record map[string]string, apiKey string) (gemini.Result, error) {
	return gemini.Result{
		Email:   record["email"],
		Name:    record["name"],
		Message: "Hello " + record["name"],
	}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rotator, err := keys.NewRotator(context.Background(), []string{"key-a"}, 100, keys.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}

	cfg := config.Config{
		BatchSize:   5,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
	handler := NewHandler(rotator, stubClient{}, localstore.New(t.TempDir()), nil, cfg)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func uploadRequest(t *testing.T, fileName, contents string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(contents)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProcessUploadProducesDownloadableArtifacts(t *testing.T) {
	r := newTestRouter(t)

	csv := "email,name,company\njane@example.com,Jane,Acme\nbob@example.com,Bob,Initech\n"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "contacts.csv", csv))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out processResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Attempted != 2 || out.Succeeded != 2 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if !strings.HasPrefix(out.Filename, "processed_") || !strings.HasPrefix(out.ListmonkFilename, "listmonk_") {
		t.Fatalf("unexpected artifact names %+v", out)
	}

	download := httptest.NewRecorder()
	r.ServeHTTP(download, httptest.NewRequest(http.MethodGet, "/api/v1/download/"+out.RunID+"/"+out.Filename, nil))
	if download.Code != http.StatusOK {
		t.Fatalf("download processed: expected 200, got %d", download.Code)
	}
	body := download.Body.String()
	if !strings.HasPrefix(body, "email,name,message") {
		t.Fatalf("processed artifact missing header: %q", body)
	}
	if !strings.Contains(body, "jane@example.com") || !strings.Contains(body, "Hello Bob") {
		t.Fatalf("processed artifact missing rows: %q", body)
	}

	lmDownload := httptest.NewRecorder()
	r.ServeHTTP(lmDownload, httptest.NewRequest(http.MethodGet, "/api/v1/download/"+out.RunID+"/"+out.ListmonkFilename, nil))
	if lmDownload.Code != http.StatusOK {
		t.Fatalf("download listmonk: expected 200, got %d", lmDownload.Code)
	}
	if !strings.HasPrefix(lmDownload.Body.String(), "email,name,attributes") {
		t.Fatalf("listmonk artifact missing header: %q", lmDownload.Body.String())
	}
}

func TestProcessRejectsNonCSV(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "contacts.txt", "email,name\na@b.c,A\n"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-CSV upload, got %d", resp.Code)
	}
}

func TestProcessRejectsMissingFile(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a file, got %d", resp.Code)
	}
}

func TestProcessRejectsHeaderOnlyCSV(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "contacts.csv", "email,name\n"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for header-only CSV, got %d", resp.Code)
	}
}

func TestProcessUnconfiguredReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, nil, localstore.New(t.TempDir()), nil, config.Config{})
	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/v1"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "contacts.csv", "email,name\na@b.c,A\n"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when keys are missing, got %d", resp.Code)
	}
}

func TestDownloadRejectsBadRunID(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/download/not-a-uuid/file.csv", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad run id, got %d", resp.Code)
	}
}
