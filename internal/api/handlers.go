package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/pipeline"
	"github.com/lokeshpanthangi/lecturechat/internal/rag"
	"github.com/lokeshpanthangi/lecturechat/internal/repository"
	"github.com/lokeshpanthangi/lecturechat/internal/utils"
	"github.com/lokeshpanthangi/lecturechat/internal/vectorstore"
)

// maxUploadBytes caps recording uploads at 500MB.
const maxUploadBytes = 500 * 1024 * 1024

// iPhone and screen-recorder formats plus the common video containers.
var allowedExts = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4a", ".mp3", ".wav", ".aac", ".ogg", ".flac"}

// Handler carries the explicitly injected collaborators for every route.
type Handler struct {
	store     repository.Store
	pipeline  *pipeline.Pipeline
	engine    *rag.Engine
	index     vectorstore.Index
	uploadDir string
	log       *logrus.Entry
}

func NewHandler(store repository.Store, p *pipeline.Pipeline, engine *rag.Engine, index vectorstore.Index, uploadDir string, log *logrus.Entry) *Handler {
	return &Handler{
		store:     store,
		pipeline:  p,
		engine:    engine,
		index:     index,
		uploadDir: uploadDir,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", h.healthCheck)

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.POST("/recordings", h.uploadRecording)
		v1.GET("/recordings", h.listRecordings)
		v1.GET("/recordings/:recording_id", h.getRecording)
		v1.GET("/recordings/:recording_id/status", h.getRecordingStatus)
		v1.POST("/recordings/:recording_id/reprocess", h.reprocessRecording)
		v1.DELETE("/recordings/:recording_id", h.deleteRecording)
		v1.POST("/recordings/:recording_id/ask", h.askRecording)
		v1.GET("/recordings/:recording_id/exchanges", h.listExchanges)
		v1.DELETE("/exchanges/:exchange_id", h.deleteExchange)
		v1.GET("/index/stats", h.indexStats)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "lecturechat-backend",
	})
}

// uploadRecording accepts a multipart media upload, persists the recording
// record and kicks off the ingestion pipeline in the background.
func (h *Handler) uploadRecording(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		// Try alternative field names used by older clients
		if file, err = c.FormFile("video"); err != nil {
			if file, err = c.FormFile("audio"); err != nil {
				utils.Error(c, http.StatusBadRequest, "file is required")
				return
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	valid := false
	for _, allowed := range allowedExts {
		if ext == allowed {
			valid = true
			break
		}
	}
	if !valid {
		utils.Error(c, http.StatusBadRequest, "unsupported media format. Supported: "+strings.Join(allowedExts, ", "))
		return
	}

	if file.Size > maxUploadBytes {
		utils.Error(c, http.StatusRequestEntityTooLarge, "file size exceeds 500MB limit")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = strings.TrimSuffix(file.Filename, ext)
	}

	id := uuid.New()
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		utils.Error(c, http.StatusInternalServerError, "failed to create upload directory")
		return
	}
	dst := filepath.Join(h.uploadDir, id.String()+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.log.WithField("error", err.Error()).Error("failed to save upload")
		utils.Error(c, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}

	rec := &model.Recording{
		ID:        id,
		Title:     title,
		MediaPath: dst,
		SizeBytes: file.Size,
		MimeType:  file.Header.Get("Content-Type"),
		Status:    model.StatusProcessing,
		Stage:     model.StageUploading,
		Progress:  0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := h.store.CreateRecording(c.Request.Context(), rec); err != nil {
		utils.FromError(c, err)
		return
	}

	h.pipeline.Start(id)

	utils.Success(c, gin.H{
		"recording_id": id,
		"title":        title,
		"status":       rec.Status,
		"stage":        rec.Stage,
	})
}

func (h *Handler) listRecordings(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	list, err := h.store.ListRecordings(c.Request.Context(), limit, offset)
	if err != nil {
		utils.FromError(c, err)
		return
	}
	total, err := h.store.CountRecordings(c.Request.Context())
	if err != nil {
		utils.FromError(c, err)
		return
	}

	utils.Success(c, gin.H{
		"recordings": list,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handler) getRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	rec, err := h.store.GetRecording(c.Request.Context(), id)
	if err != nil {
		utils.FromError(c, err)
		return
	}

	resp := gin.H{"recording": rec}
	if tr, err := h.store.GetTranscriptByRecording(c.Request.Context(), id); err == nil {
		resp["transcript"] = tr
	}
	utils.Success(c, resp)
}

func (h *Handler) getRecordingStatus(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	rec, err := h.store.GetRecording(c.Request.Context(), id)
	if err != nil {
		utils.FromError(c, err)
		return
	}
	utils.Success(c, gin.H{
		"recording_id": rec.ID,
		"status":       rec.Status,
		"stage":        rec.Stage,
		"progress":     rec.Progress,
		"error":        rec.Error,
	})
}

// reprocessRecording purges prior artifacts and runs the pipeline again.
// Rejected with 409 while the recording is still actively processing.
func (h *Handler) reprocessRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	if err := h.pipeline.Reprocess(c.Request.Context(), id); err != nil {
		utils.FromError(c, err)
		return
	}

	h.pipeline.Start(id)

	utils.Success(c, gin.H{
		"recording_id": id,
		"status":       model.StatusProcessing,
		"stage":        model.StageUploading,
	})
}

// deleteRecording cascades: vectors, chunks, transcript, exchanges, record,
// then the media file itself.
func (h *Handler) deleteRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rec, err := h.store.GetRecording(ctx, id)
	if err != nil {
		utils.FromError(c, err)
		return
	}

	if err := h.index.DeleteByRecording(ctx, id.String()); err != nil {
		h.log.WithField("error", err.Error()).Warn("vector cleanup failed during delete")
	}
	if err := h.store.DeleteChunksByRecording(ctx, id); err != nil {
		utils.FromError(c, err)
		return
	}
	if err := h.store.DeleteTranscriptByRecording(ctx, id); err != nil {
		utils.FromError(c, err)
		return
	}
	if err := h.store.DeleteExchangesByRecording(ctx, id); err != nil {
		utils.FromError(c, err)
		return
	}
	if err := h.store.DeleteRecording(ctx, id); err != nil {
		utils.FromError(c, err)
		return
	}
	if rec.MediaPath != "" {
		if err := os.Remove(rec.MediaPath); err != nil && !os.IsNotExist(err) {
			h.log.WithField("error", err.Error()).Warn("media file cleanup failed")
		}
	}

	utils.Success(c, gin.H{"deleted": id})
}

type askRequest struct {
	Question string `json:"question" binding:"required,min=3"`
}

func (h *Handler) askRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "question is required (min 3 characters)")
		return
	}

	rec, err := h.store.GetRecording(c.Request.Context(), id)
	if err != nil {
		utils.FromError(c, err)
		return
	}
	if rec.Status != model.StatusReady {
		utils.Error(c, http.StatusConflict, "recording is not ready for questions (status: "+string(rec.Status)+")")
		return
	}

	ex, err := h.engine.Ask(c.Request.Context(), id, req.Question)
	if err != nil {
		utils.FromError(c, err)
		return
	}

	utils.Success(c, gin.H{
		"exchange_id": ex.ID,
		"question":    ex.Question,
		"answer":      ex.Answer,
		"citations":   ex.Citations,
		"sources":     ex.Sources,
		"created_at":  ex.CreatedAt,
	})
}

func (h *Handler) listExchanges(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	list, err := h.store.ListExchangesByRecording(c.Request.Context(), id, limit, offset)
	if err != nil {
		utils.FromError(c, err)
		return
	}
	utils.Success(c, gin.H{"exchanges": list})
}

func (h *Handler) deleteExchange(c *gin.Context) {
	id, err := uuid.Parse(c.Param("exchange_id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid exchange id")
		return
	}
	if err := h.store.DeleteExchange(c.Request.Context(), id); err != nil {
		utils.FromError(c, err)
		return
	}
	utils.Success(c, gin.H{"deleted": id})
}

func (h *Handler) indexStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.index.Stats(ctx)
	if err != nil {
		utils.FromError(c, err)
		return
	}
	utils.Success(c, gin.H{"stats": stats})
}

func recordingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("recording_id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid recording id")
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
