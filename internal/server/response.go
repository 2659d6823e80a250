package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/me/pmcore/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondKernelError maps a kernel error number to an HTTP status.
func respondKernelError(w http.ResponseWriter, reqID string, err error) {
	var errno model.Errno
	if !errors.As(err, &errno) {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	apiErr := &model.APIError{Message: err.Error()}
	status := http.StatusInternalServerError
	switch errno {
	case model.ESRCH:
		apiErr.Code, status = model.ErrNotFound, http.StatusNotFound
	case model.EINVAL:
		apiErr.Code, status = model.ErrValidation, http.StatusBadRequest
	case model.EPERM, model.ECHILD:
		apiErr.Code, status = model.ErrConflict, http.StatusConflict
	case model.EAGAIN, model.ENOMEM:
		apiErr.Code, status = model.ErrExhausted, http.StatusServiceUnavailable
	default:
		apiErr.Code = model.ErrInternal
	}
	apiErr.Details = []model.FieldError{{Field: "errno", Message: errno.Name()}}
	respondError(w, reqID, status, apiErr)
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// decodeBody reads an optional JSON request body into v.
func decodeBody(r *http.Request, v any) *model.APIError {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("Invalid JSON body", model.FieldError{Message: err.Error()})
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, *model.APIError) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.NewValidationError("Invalid query parameter",
			model.FieldError{Field: name, Message: "expected an integer"})
	}
	return n, nil
}

// listOptions reads limit, offset, kind and pid from the query string.
func listOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	var apiErr *model.APIError
	if opts.Limit, apiErr = queryInt(r, "limit", opts.Limit); apiErr != nil {
		return opts, apiErr
	}
	if opts.Offset, apiErr = queryInt(r, "offset", opts.Offset); apiErr != nil {
		return opts, apiErr
	}
	if opts.PID, apiErr = queryInt(r, "pid", opts.PID); apiErr != nil {
		return opts, apiErr
	}
	opts.Kind = model.EventKind(r.URL.Query().Get("kind"))
	opts.Clamp()
	return opts, nil
}
