package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
	"github.com/hyperjump/cardex/internal/storage"
	"go.uber.org/zap"
)

var (
	errTooLarge    = errors.New("file too large")
	errUnsupported = errors.New("unsupported file type")
)

// allowedExt lists the image types accepted by the upload form and the API.
var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

func (s *Server) maxFileBytes() int64 {
	return s.config.Server.MaxUploadMB << 20
}

// readImages reads the "front" and "back" parts. A missing part is returned
// as nil; the pipeline rejects the pair.
func (s *Server) readImages(w http.ResponseWriter, r *http.Request) (front, back *models.Image, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.maxFileBytes()+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, errTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("invalid upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if front, err = s.readPart(r, string(models.SideFront)); err != nil {
		return nil, nil, err
	}
	if back, err = s.readPart(r, string(models.SideBack)); err != nil {
		return nil, nil, err
	}
	return front, back, nil
}

func (s *Server) readPart(r *http.Request, name string) (*models.Image, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload: %w", name, err)
	}
	defer file.Close()

	if header.Size > s.maxFileBytes() {
		return nil, fmt.Errorf("%w: %s side exceeds %dMB", errTooLarge, name, s.config.Server.MaxUploadMB)
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExt[ext] {
		return nil, fmt.Errorf("%w: %s side must be JPG, JPEG or PNG", errUnsupported, name)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", name, err)
	}
	return &models.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupported):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

// reasonStatus maps a failed run to an HTTP status.
func reasonStatus(reason pipeline.Reason) int {
	switch reason {
	case pipeline.ReasonNone:
		return http.StatusOK
	case pipeline.ReasonUpload, pipeline.ReasonMalformedExtraction:
		return http.StatusBadGateway
	case pipeline.ReasonOCR:
		return http.StatusUnprocessableEntity
	case pipeline.ReasonServiceUnavailable, pipeline.ReasonCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, "index", indexPage{MaxUploadMB: s.config.Server.MaxUploadMB})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	front, back, err := s.readImages(w, r)
	if err != nil {
		s.renderHTML(w, uploadStatus(err), "index", indexPage{Warning: err.Error(), MaxUploadMB: s.config.Server.MaxUploadMB})
		return
	}
	outcome, err := s.runner.Run(r.Context(), pipeline.Input{Front: front, Back: back})
	if errors.Is(err, models.ErrMissingImage) {
		s.renderHTML(w, http.StatusBadRequest, "index", indexPage{Warning: pipeline.MsgMissingImage, MaxUploadMB: s.config.Server.MaxUploadMB})
		return
	}
	if outcome == nil {
		s.logger.Error("run returned no outcome", zap.Error(err))
		s.renderHTML(w, http.StatusInternalServerError, "result", resultPage{Errors: []string{pipeline.UserMessage(err)}})
		return
	}
	page := resultPage{
		RunID:        outcome.RunID,
		ElapsedMS:    outcome.Elapsed().Milliseconds(),
		Records:      outcome.Visible(s.config.Pipeline.PartialResults),
		SideFailures: outcome.SideFailures(),
	}
	if err != nil {
		page.Errors = []string{pipeline.UserMessage(err)}
	}
	s.renderHTML(w, http.StatusOK, "result", page)
}

type extractResponse struct {
	RunID      string                 `json:"run_id"`
	State      pipeline.State         `json:"state"`
	Reason     pipeline.Reason        `json:"reason,omitempty"`
	FailedSide models.Side            `json:"failed_side,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Errors     []pipeline.SideFailure `json:"errors,omitempty"`
	Front      *models.Record         `json:"front,omitempty"`
	Back       *models.Record         `json:"back,omitempty"`
	ElapsedMS  int64                  `json:"elapsed_ms"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	front, back, err := s.readImages(w, r)
	if err != nil {
		s.respondError(w, uploadStatus(err), err.Error())
		return
	}
	outcome, err := s.runner.Run(r.Context(), pipeline.Input{Front: front, Back: back})
	if errors.Is(err, models.ErrMissingImage) {
		s.respondError(w, http.StatusBadRequest, pipeline.MsgMissingImage)
		return
	}
	if outcome == nil {
		s.logger.Error("run returned no outcome", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, pipeline.UserMessage(err))
		return
	}
	resp := extractResponse{
		RunID:      outcome.RunID,
		State:      outcome.State,
		Reason:     outcome.Reason,
		FailedSide: outcome.FailedSide,
		Message:    pipeline.UserMessage(err),
		Errors:     outcome.SideFailures(),
		ElapsedMS:  outcome.Elapsed().Milliseconds(),
	}
	for _, rec := range outcome.Visible(s.config.Pipeline.PartialResults) {
		rec := rec
		if rec.Side == models.SideBack {
			resp.Back = &rec
		} else {
			resp.Front = &rec
		}
	}
	s.respondJSON(w, reasonStatus(outcome.Reason), resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.respondError(w, http.StatusNotImplemented, "run log not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"config": s.config,
	}
	if s.runs != nil {
		stats, err := s.runs.Stats(r.Context())
		if err != nil {
			s.logger.Error("status: run stats failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["runs"] = stats
	}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.RunLogPath, s.config.Storage.LocalDir)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
