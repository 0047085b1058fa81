package controller

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
)

type produceRequest struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type produceResponse struct {
	Offset string `json:"offset"`
}

// handleProduce appends one record and answers with its offset once the
// record is durable.
func (h *Handler) handleProduce(w http.ResponseWriter, r *http.Request) {
	partitionID, err := h.partitionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key, value, err := parseProduceBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	offset, err := h.svc.Produce(r.Context(), partitionID, key, value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, produceResponse{Offset: strconv.FormatUint(offset, 10)})
}

// parseProduceBody accepts a JSON object or a urlencoded form carrying key
// and value. Both fields must be present; empty strings are allowed.
func parseProduceBody(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req produceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", bodyError("invalid JSON body", err)
		}
		if req.Key == nil || req.Value == nil {
			return "", "", &httpError{status: http.StatusBadRequest, msg: "key and value are required"}
		}
		return *req.Key, *req.Value, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", bodyError("invalid form body", err)
	}
	if !r.PostForm.Has("key") || !r.PostForm.Has("value") {
		return "", "", &httpError{status: http.StatusBadRequest, msg: "key and value are required"}
	}
	return r.PostForm.Get("key"), r.PostForm.Get("value"), nil
}

func bodyError(prefix string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &httpError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
	}
	return &httpError{status: http.StatusBadRequest, msg: prefix + ": " + err.Error()}
}
