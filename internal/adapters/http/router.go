package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
	"github.com/nreshetnikov/image-recognition-service/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	intake   ports.TaskIntake
	receiver ports.BlobReceiver
	tasks    ports.TaskReader
	metrics  *metrics.HTTPServerMetrics

	maxUploadBytes int64
	rateLimitRPS   int
	rateLimitBurst int
}

func NewRouter(
	intake ports.TaskIntake,
	receiver ports.BlobReceiver,
	tasks ports.TaskReader,
	httpMetrics *metrics.HTTPServerMetrics,
	maxUploadBytes int64,
	rateLimitRPS, rateLimitBurst int,
) *Router {
	return &Router{
		intake:         intake,
		receiver:       receiver,
		tasks:          tasks,
		metrics:        httpMetrics,
		maxUploadBytes: maxUploadBytes,
		rateLimitRPS:   rateLimitRPS,
		rateLimitBurst: rateLimitBurst,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/tasks", rt.createTask)
	mux.HandleFunc("/v1/tasks/", rt.getTask)
	mux.HandleFunc("/v1/uploads/", rt.uploadBlob)
	mux.Handle("/metrics", rt.metrics.Handler())

	handler := rateLimitMiddleware(mux, rt.rateLimitRPS, rt.rateLimitBurst)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	CallbackURL           string `json:"callback_url"`
	AllowInsecureCallback bool   `json:"allow_insecure_callback"`
}

type createTaskResponse struct {
	TaskID string              `json:"task_id"`
	Upload domain.UploadTarget `json:"upload"`
}

// createTask registers a recognition task. The body is optional; when
// present it must be JSON with only the two known fields, mirroring what
// callers of the original endpoint relied on.
func (rt *Router) createTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req createTaskRequest
	if r.ContentLength != 0 {
		contentType := r.Header.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "this endpoint accepts application/json only"})
			return
		}
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to parse body, expected JSON with callback_url and allow_insecure_callback only"})
			return
		}
	}

	task, target, err := rt.intake.CreateTask(r.Context(), req.CallbackURL, req.AllowInsecureCallback)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createTaskResponse{
		TaskID: task.ID,
		Upload: target,
	})
}

func (rt *Router) uploadBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/v1/uploads/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	// The size ceiling is part of the upload target contract; anything over
	// it is cut off here, before a single storage byte is written.
	body := http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	defer body.Close()

	if err := rt.receiver.Receive(r.Context(), taskID, body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		writeError(w, err)
		return
	}

	rt.metrics.RecordUploadSize(serviceName, r.ContentLength)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

type taskStatusResponse struct {
	TaskID        string            `json:"task_id"`
	Status        domain.TaskStatus `json:"status"`
	Result        []domain.Label    `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	CallbackError string            `json:"callback_error,omitempty"`
}

// getTask returns the last recorded task state verbatim, including any
// callback delivery failure. Internal bookkeeping (timestamps, the insecure
// flag, claim state) stays internal.
func (rt *Router) getTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	task, err := rt.tasks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID:        task.ID,
		Status:        task.Status,
		Result:        task.Result,
		Error:         task.Error,
		CallbackError: task.CallbackError,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
