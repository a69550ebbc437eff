// Package cab is a thin client for the remote answer-history record store: a
// key-value HTTP API with create/read/upsert semantics. The service treats
// every failure here as soft; callers log and carry on with local state.
package cab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mapquiz-service/internal/domain"
)

// Client talks JSON to the record store.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// record is the top-level stored document. answerHistory is kept under its
// own key so future properties can be added without a migration.
type record struct {
	AnswerHistory []domain.AnswerHistoryItem `json:"answerHistory"`
}

type createResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type readResponse struct {
	Data  *record `json:"data,omitempty"`
	Error string  `json:"error,omitempty"`
}

type upsertResponse struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

type upsertRequest struct {
	Action string                   `json:"action"`
	Path   string                   `json:"path"`
	Data   domain.AnswerHistoryItem `json:"data"`
}

// Create makes a new, empty history record and returns its id.
func (c *Client) Create(ctx context.Context) (string, error) {
	var response createResponse
	err := c.do(ctx, http.MethodPost, c.baseURL, record{AnswerHistory: []domain.AnswerHistoryItem{}}, &response)
	if err != nil {
		return "", err
	}
	if response.Error != "" {
		return "", fmt.Errorf("create record: %s", response.Error)
	}
	return response.ID, nil
}

// Read fetches the history for an id. An {error} response maps to
// domain.ErrRecordNotFound so callers can fall back to creating a record.
func (c *Client) Read(ctx context.Context, id string) ([]domain.AnswerHistoryItem, error) {
	var response readResponse
	err := c.do(ctx, http.MethodGet, c.baseURL+"/"+id, nil, &response)
	if err != nil {
		return nil, err
	}
	if response.Error != "" || response.Data == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, response.Error)
	}
	return response.Data.AnswerHistory, nil
}

// Upsert writes one history item into the record's answerHistory array,
// replacing any item with the same id.
func (c *Client) Upsert(ctx context.Context, id string, item domain.AnswerHistoryItem) error {
	var response upsertResponse
	err := c.do(ctx, http.MethodPatch, c.baseURL+"/"+id, upsertRequest{
		Action: "ARRAY_UPSERT",
		Path:   "answerHistory",
		Data:   item,
	}, &response)
	if err != nil {
		return err
	}
	if response.Error != "" {
		return fmt.Errorf("upsert record %s: %s", id, response.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
