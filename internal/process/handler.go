package process

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yahyamohmuedpro99/csv-formater/internal/contacts"
	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/listmonk"
	"github.com/yahyamohmuedpro99/csv-formater/internal/outreach"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/config"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/server/respond"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/object"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/telemetry"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/util"
)

const maxUploadBytes = 20 << 20

// Handler drives a full processing run from an uploaded CSV: generation for
// every row, the processed artifact, its listmonk reshape, and an optional
// push to listmonk itself.
type Handler struct {
	rotator  *keys.Rotator
	client   gemini.Client
	store    object.ObjectStore
	listmonk *listmonk.Client

	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
}

// NewHandler constructs a Handler. listmonkClient may be nil when no listmonk
// instance is configured; the push stage is skipped then.
func NewHandler(rotator *keys.Rotator, client gemini.Client, store object.ObjectStore, listmonkClient *listmonk.Client, cfg config.Config) *Handler {
	return &Handler{
		rotator:     rotator,
		client:      client,
		store:       store,
		listmonk:    listmonkClient,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}
}

// RegisterRoutes registers the processing routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/process", h.process)
	rg.GET("/download/:run/:name", h.download)
}

type processResponse struct {
	Message          string `json:"message"`
	RunID            string `json:"runId"`
	Filename         string `json:"filename"`
	ListmonkFilename string `json:"listmonkFilename"`
	Attempted        int    `json:"attempted"`
	Succeeded        int    `json:"succeeded"`
	ListmonkPushed   bool   `json:"listmonkPushed"`
}

func (h *Handler) process(c *gin.Context) {
	if h.rotator == nil || h.client == nil {
		respond.Error(c, http.StatusServiceUnavailable, "not_configured", "no API keys configured", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds size limit", nil)
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		respond.Error(c, http.StatusBadRequest, "validation_error", "only CSV files are supported", nil)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	records, err := contacts.ReadCSV(src)
	src.Close()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid CSV file", gin.H{"reason": err.Error()})
		return
	}
	if len(records) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "CSV contains no data rows", nil)
		return
	}

	runID := uuid.NewString()
	c.Set("runId", runID)

	workDir, err := os.MkdirTemp("", "csvrun-")
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to allocate workspace", nil)
		return
	}
	defer os.RemoveAll(workDir)

	sink := contacts.NewCSVSink(filepath.Join(workDir, "processed.csv"))
	retrier := outreach.NewRetrier(h.rotator, h.client)
	if h.maxAttempts > 0 {
		retrier.MaxAttempts = h.maxAttempts
	}
	if h.baseDelay > 0 {
		retrier.BaseDelay = h.baseDelay
	}
	dispatcher := outreach.NewDispatcher(retrier, sink)
	if h.batchSize > 0 {
		dispatcher.BatchSize = h.batchSize
	}

	outcome, runErr := dispatcher.Run(c.Request.Context(), records)
	c.Set("attempted", outcome.Attempted)
	c.Set("succeeded", outcome.Succeeded)
	if runErr != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "processing interrupted", gin.H{
			"attempted": outcome.Attempted,
			"succeeded": outcome.Succeeded,
		})
		return
	}
	if outcome.Succeeded == 0 {
		respond.Error(c, http.StatusUnprocessableEntity, "no_results", "no records could be processed", gin.H{
			"attempted": outcome.Attempted,
		})
		return
	}

	stem, err := util.SanitizeFileName(strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename)))
	if err != nil {
		stem = "upload"
	}
	timestamp := time.Now().Format("20060102_150405")
	processedName := "processed_" + timestamp + "_" + stem + ".csv"
	listmonkName := "listmonk_" + timestamp + "_" + stem + ".csv"

	processed, err := os.Open(sink.Path())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read results", nil)
		return
	}
	_, _, err = h.store.Save(c.Request.Context(), runID, processedName, processed)
	processed.Close()
	if err != nil {
		telemetry.Error("process.save_failed", map[string]any{"run_id": runID, "err": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store results", nil)
		return
	}

	processed, err = os.Open(sink.Path())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read results", nil)
		return
	}
	var listmonkCSV bytes.Buffer
	err = contacts.TransformForListmonk(processed, &listmonkCSV)
	processed.Close()
	if err != nil {
		telemetry.Error("process.listmonk_transform_failed", map[string]any{"run_id": runID, "err": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build listmonk file", nil)
		return
	}
	if _, _, err := h.store.Save(c.Request.Context(), runID, listmonkName, bytes.NewReader(listmonkCSV.Bytes())); err != nil {
		telemetry.Error("process.save_failed", map[string]any{"run_id": runID, "err": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store results", nil)
		return
	}

	pushed := false
	if h.listmonk != nil {
		if err := h.listmonk.ImportSubscribers(c.Request.Context(), listmonkName, listmonkCSV.Bytes()); err != nil {
			telemetry.Warn("process.listmonk_push_failed", map[string]any{"run_id": runID, "err": err.Error()})
		} else {
			pushed = true
		}
	}

	telemetry.Info("process.complete", map[string]any{
		"run_id":    runID,
		"attempted": outcome.Attempted,
		"succeeded": outcome.Succeeded,
		"pushed":    pushed,
	})

	respond.JSON(c, http.StatusOK, processResponse{
		Message:          "File processed successfully",
		RunID:            runID,
		Filename:         processedName,
		ListmonkFilename: listmonkName,
		Attempted:        outcome.Attempted,
		Succeeded:        outcome.Succeeded,
		ListmonkPushed:   pushed,
	})
}

func (h *Handler) download(c *gin.Context) {
	runID := c.Param("run")
	name := c.Param("name")

	if _, err := uuid.Parse(runID); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid run id", nil)
		return
	}
	sanitized, err := util.SanitizeFileName(name)
	if err != nil || sanitized != name {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		return
	}

	rc, err := h.store.Open(c.Request.Context(), path.Join(runID, name))
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		telemetry.Warn("process.download_stream_failed", map[string]any{"run_id": runID, "err": err.Error()})
	}
}
