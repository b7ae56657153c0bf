package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/job"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
	"github.com/maauso/dropthemike/internal/split"
	"github.com/maauso/dropthemike/internal/storage"
)

// DefaultMaxUploadBytes bounds POST /uploads bodies.
const DefaultMaxUploadBytes int64 = 4 << 30

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *job.SplitService
	storage        storage.Storage
	validator      *validator.Validate
	logger         *slog.Logger
	defaultParts   int
	defaultQuality audio.Quality
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaults sets the part count and quality used when a split request
// leaves them empty.
func WithDefaults(parts int, quality audio.Quality) HandlerOption {
	return func(h *Handlers) {
		if parts > 0 {
			h.defaultParts = parts
		}
		if quality != "" {
			h.defaultQuality = quality
		}
	}
}

// WithMaxUploadBytes bounds the size of uploaded sources.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance. st receives uploads; it may
// be nil, in which case POST /uploads is rejected.
func NewHandlers(service *job.SplitService, st storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		storage:        st,
		validator:      newValidator(),
		logger:         logger,
		defaultParts:   segment.DefaultParts,
		defaultQuality: audio.QualityOriginal,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("quality", func(fl validator.FieldLevel) bool {
		_, err := audio.ParseQuality(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("supported_media", func(fl validator.FieldLevel) bool {
		return media.IsSupportedFile(fl.Field().String())
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload handles POST /uploads?name= requests. The raw body is stored as
// a new temp file and its path returned.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are disabled", "UPLOADS_DISABLED")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name query parameter is required", "MISSING_NAME")
		return
	}
	if !media.IsSupportedFile(name) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported media type", "UNSUPPORTED_MEDIA")
		return
	}

	body := &countingReader{r: http.MaxBytesReader(w, r.Body, h.maxUploadBytes)}
	path, err := h.storage.SaveTemp(r.Context(), name, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "UPLOAD_TOO_LARGE")
		case errors.Is(err, storage.ErrInvalidName):
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_NAME")
		default:
			h.logger.Error("failed to store upload",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
		}
		return
	}

	h.logger.Info("upload stored",
		slog.String("path", path),
		slog.Int64("size_bytes", body.n),
	)
	writeJSON(w, http.StatusCreated, UploadResponse{Path: path, SizeBytes: body.n})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaded, err := h.service.Load(r.Context(), job.LoadInput{
		SourcePath: req.SourcePath,
		OutputDir:  req.OutputDir,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to load source")
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(loaded))
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list sessions")
		return
	}

	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Sessions = append(resp.Sessions, toSessionResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id} requests. A parts query parameter
// adds a preview of what that split would produce.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get session")
		return
	}
	resp := toSessionResponse(found)

	if raw := r.URL.Query().Get("parts"); raw != "" {
		parts, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "parts must be an integer", "VALIDATION_ERROR")
			return
		}
		preview, err := h.service.Preview(r.Context(), id, parts)
		if err != nil {
			h.writeServiceError(w, err, "failed to preview split")
			return
		}
		resp.Preview = &preview
	}

	writeJSON(w, http.StatusOK, resp)
}

// Split handles POST /sessions/{id}/split requests.
func (h *Handlers) Split(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req SplitRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := job.SplitInput{
		Parts:    req.Parts,
		Quality:  h.defaultQuality,
		PushToS3: req.PushToS3,
	}
	if input.Parts == 0 {
		input.Parts = h.defaultParts
	}
	if req.Quality != "" {
		// Already checked by the quality validator.
		input.Quality, _ = audio.ParseQuality(req.Quality)
	}

	started, err := h.service.Split(r.Context(), id, input)
	if err != nil {
		h.writeServiceError(w, err, "failed to start split")
		return
	}

	h.logger.Info("split accepted",
		slog.String("session_id", id),
		slog.Int("parts", input.Parts),
		slog.String("quality", string(input.Quality)),
	)
	writeJSON(w, http.StatusAccepted, toSessionResponse(started))
}

// Resplit handles POST /sessions/{id}/resplit requests.
func (h *Handlers) Resplit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	started, err := h.service.Resplit(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to start resplit")
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(started))
}

// Cancel handles POST /sessions/{id}/cancel requests.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to cancel split")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Clear handles POST /sessions/{id}/clear requests.
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	cleared, err := h.service.Clear(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(cleared))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var probeErr *media.ProbeError
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, split.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), "SPLIT_RUNNING")
	case errors.Is(err, job.ErrPathNotAllowed):
		writeError(w, http.StatusForbidden, err.Error(), "PATH_NOT_ALLOWED")
	case errors.Is(err, job.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error(), "NOT_RUNNING")
	case errors.Is(err, split.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, storage.ErrS3NotConfigured):
		writeError(w, http.StatusBadRequest, err.Error(), "S3_NOT_CONFIGURED")
	case errors.Is(err, segment.ErrOutOfRange), errors.Is(err, audio.ErrUnknownQuality):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.As(err, &probeErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "PROBE_FAILED")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return "", false
	}
	return id, true
}

func toSessionResponse(j *job.Job) SessionResponse {
	d := j.Descriptor
	resp := SessionResponse{
		ID:     j.ID,
		Source: j.SourcePath,
		Phase:  string(j.Phase),
		Details: DetailsResponse{
			Duration:    media.FormatDuration(d.DurationSeconds),
			DurationSec: d.DurationSeconds,
			Size:        media.FormatSize(d.SizeBytes),
			SizeBytes:   d.SizeBytes,
			BitrateKbps: d.BitrateKbps,
			AudioCodec:  d.AudioCodec,
			SampleRate:  d.SampleRate,
			Channels:    d.Channels,
			IsVideo:     d.IsVideo,
		},
		Parts:         j.Parts,
		Quality:       string(j.Quality),
		Resplit:       j.Resplit,
		Progress:      ProgressResponse{Current: j.Progress.Current, Total: j.Progress.Total},
		Files:         j.Files,
		URLs:          j.URLs,
		PushToS3:      j.PushToS3,
		Error:         j.Error,
		FailedSegment: j.FailedSegment,
		PublishError:  j.PublishError,
		CreatedAt:     j.CreatedAt,
		StartedAt:     optionalTime(j.StartedAt),
		CompletedAt:   optionalTime(j.CompletedAt),
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
