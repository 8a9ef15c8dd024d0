// Package client talks to a running kotae server over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// maxEventBytes bounds a single server-sent event line.
const maxEventBytes = 1 << 20

// Client is an API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Ask asks a question and waits for the whole answer.
func (c *Client) Ask(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	var ans models.Answer
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ask", req, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// AskStream asks a question and calls onDelta with every piece of the answer
// as it arrives. It returns the session id the server used.
func (c *Client) AskStream(ctx context.Context, req *models.AskRequest, onDelta func(string) error) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ask/stream", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}
	sessionID := resp.Header.Get(models.SessionHeader)
	return sessionID, ReadEvents(resp.Body, onDelta)
}

// ReadEvents parses a server-sent event stream, passing each data payload to
// onData until the done marker. An "error" event ends the stream with an error.
func ReadEvents(r io.Reader, onData func(string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	var (
		event string
		data  []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data == nil {
				event = ""
				continue
			}
			payload := strings.Join(data, "\n")
			if event == "error" {
				return fmt.Errorf("server error: %s", payload)
			}
			if payload == models.DoneMarker {
				return nil
			}
			if err := onData(payload); err != nil {
				return err
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// Ingest sends a text document.
func (c *Client) Ingest(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	var res models.IngestResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents", input, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Upload sends a file for extraction and ingestion.
func (c *Client) Upload(ctx context.Context, path string, force bool) (*models.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.WriteField("force", strconv.FormatBool(force)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res models.IngestResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Documents lists one page of the catalog.
func (c *Client) Documents(ctx context.Context, offset, limit int) (*models.DocumentList, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var list models.DocumentList
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, nil)
}

// Refresh rebuilds the server's vector store from its catalog.
func (c *Client) Refresh(ctx context.Context) (int, error) {
	var out struct {
		Documents int `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents/refresh", nil, &out); err != nil {
		return 0, err
	}
	return out.Documents, nil
}

// Status returns catalog and index sizes.
func (c *Client) Status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WatchDirectories lists the directories the server watches.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/watch/directories", nil, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddWatchDirectory asks the server to watch path.
func (c *Client) AddWatchDirectory(ctx context.Context, path string, syncExisting bool) error {
	body := map[string]interface{}{"path": path, "sync": syncExisting}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/watch/directories", body, nil)
}

// RemoveWatchDirectory asks the server to stop watching path.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known statuses back to model errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return models.ErrDocumentNotFound
	case http.StatusUnprocessableEntity:
		return models.ErrEmptyDocument
	case http.StatusServiceUnavailable:
		return models.ErrServiceUnavailable
	}
	return nil
}

func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
