package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/downfa11-org/go-recordlog/util"
	"github.com/go-resty/resty/v2"
)

const (
	produceEndpoint = "/produce/{partitionId}"
	fetchEndpoint   = "/fetch/{partitionId}"
)

type ProduceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type produceResponse struct {
	Offset string `json:"offset"`
}

type recordResponse struct {
	Offset string `json:"offset"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the broker answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("broker returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the broker data plane over HTTP.
type Client struct {
	client    *resty.Client
	serverUrl string
}

func NewClient(serverUrl string, timeout time.Duration) *Client {
	return &Client{
		client:    resty.New().SetBaseURL(serverUrl).SetTimeout(timeout),
		serverUrl: serverUrl,
	}
}

// Produce appends a record to a partition and returns its offset.
func (c *Client) Produce(ctx context.Context, partitionID uint32, key, value string) (uint64, error) {
	var result produceResponse
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("partitionId", strconv.FormatUint(uint64(partitionID), 10)).
		SetBody(ProduceRequest{Key: key, Value: value}).
		SetResult(&result).
		SetError(&failure).
		Post(produceEndpoint)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, &StatusError{StatusCode: resp.StatusCode(), Message: failure.Error}
	}

	offset, err := util.ParseUint64(result.Offset)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q in response: %w", result.Offset, err)
	}
	return offset, nil
}

// Fetch returns every record of a partition the broker has cached so far.
func (c *Client) Fetch(ctx context.Context, partitionID uint32) ([]types.Record, error) {
	var result []recordResponse
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("partitionId", strconv.FormatUint(uint64(partitionID), 10)).
		SetResult(&result).
		SetError(&failure).
		Get(fetchEndpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Message: failure.Error}
	}

	records := make([]types.Record, 0, len(result))
	for _, r := range result {
		offset, err := util.ParseUint64(r.Offset)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q in response: %w", r.Offset, err)
		}
		records = append(records, types.NewRecord(offset, r.Key, r.Value))
	}
	return records, nil
}

// Health reports whether the broker answers its health check.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return nil
}
