// Package httpapi serves the bridge operations as a small JSON REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/syarbeats/mcp-playground/bridge"
	"github.com/syarbeats/mcp-playground/internal/logctx"
)

const maxBodyBytes = 1 << 20

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// Handler routes REST requests to a bridge.Service.
type Handler struct {
	svc *bridge.Service
	log *slog.Logger
	mux *http.ServeMux
}

var _ http.Handler = (*Handler)(nil)

// New builds the REST handler.
func New(svc *bridge.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, log: slog.Default(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("POST /api/tasks", h.createTask)
	h.mux.HandleFunc("GET /api/tasks", h.listTasks)
	h.mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	h.mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	h.mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	h.mux.HandleFunc("GET /api/statistics", h.statistics)
	h.mux.HandleFunc("GET /api/system/status", h.status)
	h.mux.HandleFunc("GET /api/system/capabilities", h.capabilities)
	h.mux.HandleFunc("GET /api/resources", h.readResource)
	h.mux.HandleFunc("GET /health", h.health)
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	r = r.WithContext(ctx)

	if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "only application/json responses are available")
		h.log.WarnContext(ctx, "http.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.log.InfoContext(ctx, "http.request",
		slog.Int("status", rec.status),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
}

// writeJSONError emits {"error":{"code":<status>,"kind":<kind>,"message":<msg>}}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeKindError(w, status, "", msg)
}

func writeKindError(w http.ResponseWriter, status int, kind bridge.Kind, msg string) {
	body := map[string]any{"code": status, "message": msg}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// statusFor maps bridge error kinds onto HTTP statuses.
func statusFor(kind bridge.Kind) int {
	switch kind {
	case bridge.KindNotConnected:
		return http.StatusServiceUnavailable
	case bridge.KindNotFound:
		return http.StatusNotFound
	case bridge.KindInvalidInput:
		return http.StatusBadRequest
	case bridge.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var be *bridge.Error
	if !errors.As(err, &be) {
		be = &bridge.Error{Kind: bridge.KindInternal, Message: "internal error", Err: err}
	}
	status := statusFor(be.Kind)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "http.handler.fail", slog.String("kind", string(be.Kind)), slog.String("err", err.Error()))
	}
	writeKindError(w, status, be.Kind, be.Message)
}

// decodeBody reads a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var in bridge.CreateTaskInput
	if !decodeBody(w, r, &in) {
		return
	}
	task, err := h.svc.CreateTask(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page")
	if !ok {
		writeKindError(w, http.StatusBadRequest, bridge.KindInvalidInput, "page must be an integer")
		return
	}
	size, ok := queryInt(r, "page_size")
	if !ok {
		writeKindError(w, http.StatusBadRequest, bridge.KindInvalidInput, "page_size must be an integer")
		return
	}
	res, err := h.svc.ListTasks(r.Context(), bridge.ListTasksInput{
		Status:   r.URL.Query().Get("status"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var u bridge.TaskUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), r.PathValue("id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetStatistics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetStatus(r.Context()))
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.svc.GetCapabilities(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *Handler) readResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReadResource(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.svc.GetStatus(r.Context())
	health := "healthy"
	if !st.Connected {
		health = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    health,
		"mode":      st.Mode,
		"connected": st.Connected,
		"timestamp": time.Now().UTC(),
	})
}
