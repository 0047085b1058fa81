package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/downfa11-org/go-recordlog/pkg/controller"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu         sync.Mutex
	partitions int
	records    map[uint32][]types.Record
	produceErr error
	fetchErr   error
}

func newFakeService(partitions int) *fakeService {
	return &fakeService{partitions: partitions, records: make(map[uint32][]types.Record)}
}

func (f *fakeService) Produce(_ context.Context, partitionID uint32, key, value string) (uint64, error) {
	if f.produceErr != nil {
		return 0, f.produceErr
	}
	if err := types.ValidateRecord(key, value); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	offset := uint64(len(f.records[partitionID]) + 1)
	f.records[partitionID] = append(f.records[partitionID], types.NewRecord(offset, key, value))
	return offset, nil
}

func (f *fakeService) Fetch(partitionID uint32) ([]types.Record, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Record{}, f.records[partitionID]...), nil
}

func (f *fakeService) PartitionCount() int {
	return f.partitions
}

func serve(svc controller.RecordService, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	controller.NewHandler(svc).Routes().ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	rec := serve(newFakeService(1), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProduceJSON(t *testing.T) {
	svc := newFakeService(4)

	rec := serve(svc, postJSON("/produce/2", `{"key":"k","value":"v"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"offset":"1"}`, rec.Body.String())

	rec = serve(svc, postJSON("/produce/2", `{"key":"","value":""}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"offset":"2"}`, rec.Body.String())
}

func TestProduceForm(t *testing.T) {
	svc := newFakeService(4)

	rec := serve(svc, postForm("/produce/0", url.Values{"key": {"a"}, "value": {"b c"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"offset":"1"}`, rec.Body.String())

	records, _ := svc.Fetch(0)
	assert.Equal(t, []types.Record{{Offset: 1, Key: "a", Value: "b c"}}, records)
}

func TestProduceErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"partition out of range", postJSON("/produce/4", `{"key":"k","value":"v"}`), http.StatusNotFound},
		{"negative partition", postJSON("/produce/-1", `{"key":"k","value":"v"}`), http.StatusNotFound},
		{"non numeric partition", postJSON("/produce/abc", `{"key":"k","value":"v"}`), http.StatusNotFound},
		{"missing value", postJSON("/produce/0", `{"key":"k"}`), http.StatusBadRequest},
		{"malformed json", postJSON("/produce/0", `{"key":`), http.StatusBadRequest},
		{"missing form key", postForm("/produce/0", url.Values{"value": {"v"}}), http.StatusBadRequest},
		{"value too large", postJSON("/produce/0", `{"key":"k","value":"`+strings.Repeat("x", types.MaxValueSize+1)+`"}`), http.StatusRequestEntityTooLarge},
		{"body too large", postJSON("/produce/0", `{"key":"`+strings.Repeat("x", 70<<10)+`","value":"v"}`), http.StatusRequestEntityTooLarge},
		{"wrong method", httptest.NewRequest(http.MethodGet, "/produce/0", nil), http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newFakeService(4), tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestProduceDurabilityFailure(t *testing.T) {
	svc := newFakeService(1)
	svc.produceErr = errors.Join(types.ErrDurability, errors.New("fsync: input/output error"))

	rec := serve(svc, postJSON("/produce/0", `{"key":"k","value":"v"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	svc.produceErr = types.ErrWriterClosed
	rec = serve(svc, postJSON("/produce/0", `{"key":"k","value":"v"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFetch(t *testing.T) {
	svc := newFakeService(2)
	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/fetch/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	_, _ = svc.Produce(context.Background(), 1, "k1", "v1")
	_, _ = svc.Produce(context.Background(), 1, "k2", "v2")

	rec = serve(svc, httptest.NewRequest(http.MethodGet, "/fetch/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []map[string]string{
		{"offset": "1", "key": "k1", "value": "v1"},
		{"offset": "2", "key": "k2", "value": "v2"},
	}, body)
}

func TestFetchErrors(t *testing.T) {
	svc := newFakeService(2)
	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/fetch/2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.fetchErr = errors.New("mmap open failed")
	rec = serve(svc, httptest.NewRequest(http.MethodGet, "/fetch/0", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
