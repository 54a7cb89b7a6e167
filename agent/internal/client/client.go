package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sitevault/protocol"
)

// HTTPError is any non-2xx reply from the endpoint, carrying whatever error
// message the server managed to send.
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("endpoint returned status %d", e.Status)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.Status, e.Msg)
}

// Client talks the export protocol against one endpoint.
type Client struct {
	base string
	key  string
	http *http.Client
}

func New(baseURL, key string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		key:  key,
		// No overall timeout: large file streams legitimately run long.
		// Cancellation is the caller's context.
		http: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost:   16,
			ResponseHeaderTimeout: 60 * time.Second,
		}},
	}
}

func (c *Client) DBInit(ctx context.Context) (*protocol.DBInitResponse, error) {
	var out protocol.DBInitResponse
	if err := c.postJSON(ctx, "/db/init", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DBProcess(ctx context.Context, jobID string, budget time.Duration) (*protocol.DBProcessResponse, error) {
	req := protocol.DBProcessRequest{JobID: jobID, TimeBudgetMs: int(budget.Milliseconds())}
	var out protocol.DBProcessResponse
	if err := c.postJSON(ctx, "/db/process", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DBDownload streams the export artifact into w, returning bytes copied.
// An empty artifact is an error: a finished export always has content.
func (c *Client) DBDownload(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	body, err := c.get(ctx, "/db/download?id="+url.QueryEscape(jobID))
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("download artifact: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("download artifact: empty response")
	}
	return n, nil
}

func (c *Client) DBFinish(ctx context.Context, jobID string) error {
	var out protocol.OKResponse
	return c.postJSON(ctx, "/db/finish", protocol.JobRequest{JobID: jobID}, &out)
}

func (c *Client) ManifestInit(ctx context.Context) (*protocol.ManifestInitResponse, error) {
	var out protocol.ManifestInitResponse
	if err := c.postJSON(ctx, "/manifest/init", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ManifestPage(ctx context.Context, jobID string, offset, limit int) (*protocol.ManifestPageResponse, error) {
	q := "/manifest/page?id=" + url.QueryEscape(jobID) +
		"&offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(limit)
	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var out protocol.ManifestPageResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode manifest page: %w", err)
	}
	return &out, nil
}

func (c *Client) ManifestFinish(ctx context.Context, jobID string) error {
	var out protocol.OKResponse
	return c.postJSON(ctx, "/manifest/finish", protocol.JobRequest{JobID: jobID}, &out)
}

// FetchFile streams one site file. Caller closes the reader.
func (c *Client) FetchFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.get(ctx, "/file?path="+url.QueryEscape(path))
}

// FetchBatch streams a zip of many small files as one transfer.
func (c *Client) FetchBatch(ctx context.Context, paths []string) (io.ReadCloser, error) {
	raw, err := json.Marshal(protocol.BatchRequest{Paths: paths})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/files/batch", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.AccessKeyHeader, c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch fetch: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, c.asHTTPError(resp)
	}
	return resp.Body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.AccessKeyHeader, c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return c.asHTTPError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, pathAndQuery string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+pathAndQuery, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(protocol.AccessKeyHeader, c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", pathAndQuery, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, c.asHTTPError(resp)
	}
	return resp.Body, nil
}

func (c *Client) asHTTPError(resp *http.Response) error {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er protocol.ErrorResponse
	msg := ""
	if json.Unmarshal(raw, &er) == nil {
		msg = er.Error
	}
	return &HTTPError{Status: resp.StatusCode, Msg: msg}
}
