package chat

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/HerbHall/parley/internal/ingest"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/validate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 1 << 20

type uploadResponse struct {
	Message        string `json:"message"`
	JobID          string `json:"jobId"`
	CollectionName string `json:"collectionName"`
}

// handleUpload spools a document and queues it for ingestion. Parsing and
// embedding happen in the external worker.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.Gate.Protect(w, r, h.Policies.Upload) {
		return
	}
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if h.Spool == nil || h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Document ingestion is not configured", "")
		return
	}

	maxBytes := h.Limits.Upload.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Gate.Invalid(w, []string{validate.SizeMessage(maxBytes)})
			return
		}
		h.Gate.Invalid(w, []string{"No file uploaded"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fh, err := r.FormFile("file")
	if err != nil {
		fh = nil
	} else {
		defer file.Close()
	}
	if res := validate.Upload(fh, h.Limits.Upload); !res.Valid {
		h.Gate.Invalid(w, res.Errors)
		return
	}

	path, n, err := h.Spool.Save(fh.Filename, file, maxBytes)
	if err != nil {
		if errors.Is(err, ingest.ErrTooLarge) {
			h.Gate.Invalid(w, []string{validate.SizeMessage(maxBytes)})
			return
		}
		h.logger.Error("spool upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	collection := ingest.CollectionName(fh.Filename)
	mediaType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	job := ingest.Job{
		ID:             uuid.NewString(),
		Name:           fh.Filename,
		Path:           path,
		MIMEType:       mediaType,
		SizeBytes:      n,
		CollectionName: collection,
		UserID:         uid,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := h.Queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("enqueue upload failed", zap.String("job_id", job.ID), zap.Error(err))
		if rerr := h.Spool.Remove(path); rerr != nil {
			h.logger.Warn("remove spooled upload", zap.String("path", path), zap.Error(rerr))
		}
		writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	if h.Recorder != nil {
		h.Recorder.RecordDocument(r.Context(), persist.Document{
			ID:             job.ID,
			Name:           job.Name,
			CollectionName: job.CollectionName,
			UserID:         uid,
			SizeBytes:      n,
		})
	}

	h.logger.Info("upload queued",
		zap.String("job_id", job.ID),
		zap.String("collection", collection),
		zap.Int64("size_bytes", n),
	)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message:        "Upload accepted and processing started",
		JobID:          job.ID,
		CollectionName: collection,
	})
}
