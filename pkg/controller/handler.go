package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBody = 64 << 10

// RecordService is the part of the broker the HTTP layer drives.
type RecordService interface {
	Produce(ctx context.Context, partitionID uint32, key, value string) (uint64, error)
	Fetch(partitionID uint32) ([]types.Record, error)
	PartitionCount() int
}

type Handler struct {
	svc RecordService
}

func NewHandler(svc RecordService) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the data plane router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequest)
	r.Use(middleware.Compress(5, "application/json"))

	r.Get("/health", h.handleHealth)
	r.Post("/produce/{partitionId}", h.handleProduce)
	r.Get("/fetch/{partitionId}", h.handleFetch)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// partitionParam parses the {partitionId} path segment and checks it against
// the configured partition count.
func (h *Handler) partitionParam(r *http.Request) (uint32, error) {
	raw := chi.URLParam(r, "partitionId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id >= uint64(h.svc.PartitionCount()) {
		return 0, &httpError{status: http.StatusNotFound, msg: "partition not found: " + raw}
	}
	return uint32(id), nil
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string {
	return e.msg
}

func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, types.ErrUnknownPartition):
		return http.StatusNotFound
	case errors.Is(err, types.ErrRecordTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrWriterClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		util.Error("[%s] %s %s failed: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Warn("failed to encode response: %v", err)
	}
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		util.Debug("[%s] %s %s -> %d (%s)", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
