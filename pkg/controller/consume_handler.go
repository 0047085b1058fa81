package controller

import (
	"net/http"
	"strconv"

	"github.com/downfa11-org/go-recordlog/pkg/types"
)

type recordResponse struct {
	Offset string `json:"offset"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func toRecordResponses(records []types.Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			Offset: strconv.FormatUint(rec.Offset, 10),
			Key:    rec.Key,
			Value:  rec.Value,
		})
	}
	return out
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	partitionID, err := h.partitionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := h.svc.Fetch(partitionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponses(records))
}
