// Package client calls the read status API and feeds the answers into a
// local readstatus.Store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
)

// Client talks to a read status server on behalf of one user.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a Client with a 10 second request timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx answer decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// FetchBatch returns the read status of each distinct id, in request order.
func (c *Client) FetchBatch(ctx context.Context, docType models.DocumentType, ids []int64) ([]readstatus.Entry, error) {
	req := struct {
		DocumentType models.DocumentType `json:"document_type"`
		IDs          []int64             `json:"ids"`
	}{docType, ids}

	var entries []readstatus.Entry
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/read-status/query", req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateBatch writes several read statuses in one request.
func (c *Client) UpdateBatch(ctx context.Context, docType models.DocumentType, updates []readstatus.Update) error {
	req := struct {
		DocumentType models.DocumentType `json:"document_type"`
		Updates      []readstatus.Update `json:"updates"`
	}{docType, updates}
	return c.do(ctx, http.MethodPut, "/api/v1/documents/read-status", req, nil)
}

// MarkAsRead marks one document read and returns the server's entry.
func (c *Client) MarkAsRead(ctx context.Context, docType models.DocumentType, id int64) (readstatus.Entry, error) {
	var entry readstatus.Entry
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/documents/%d/read?type=%s", id, docType), nil, &entry)
	return entry, err
}

// MarkAsUnread marks one document unread and returns the server's entry.
func (c *Client) MarkAsUnread(ctx context.Context, docType models.DocumentType, id int64) (readstatus.Entry, error) {
	var entry readstatus.Entry
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/documents/%d/read?type=%s", id, docType), nil, &entry)
	return entry, err
}

// Hydrate fetches the status of ids and applies them to store as a single
// batch, so store subscribers are notified once. On error store is untouched.
func (c *Client) Hydrate(ctx context.Context, store *readstatus.Store, docType models.DocumentType, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	entries, err := c.FetchBatch(ctx, docType, ids)
	if err != nil {
		return err
	}
	updates := make([]readstatus.Update, len(entries))
	for i, e := range entries {
		updates[i] = readstatus.Update{ID: e.DocumentID, IsRead: e.IsRead, ReadAt: e.ReadAt}
	}
	store.UpdateMultiple(updates)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
