package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitevault/protocol"
)

func TestRequestsCarryAccessKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(protocol.AccessKeyHeader)
		json.NewEncoder(w).Encode(protocol.DBInitResponse{JobID: "j1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cret")
	resp, err := c.DBInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", gotKey)
	assert.Equal(t, "j1", resp.JobID)
}

func TestDBProcessSendsBudget(t *testing.T) {
	var got protocol.DBProcessRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(protocol.DBProcessResponse{JobID: got.JobID, Done: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	resp, err := c.DBProcess(context.Background(), "j1", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "j1", got.JobID)
	assert.Equal(t, 10000, got.TimeBudgetMs)
	assert.True(t, resp.Done)
}

func TestErrorResponsesBecomeHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "job not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	_, err := c.DBProcess(context.Background(), "gone", time.Second)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, "job not found", he.Msg)
	assert.Contains(t, he.Error(), "404")
}

func TestDBDownloadRejectsEmptyArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with no body.
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	var buf bytes.Buffer
	_, err := c.DBDownload(context.Background(), "j1", &buf)
	assert.ErrorContains(t, err, "empty")
}

func TestDBDownloadStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "j1", r.URL.Query().Get("id"))
		io.WriteString(w, "-- dump\n")
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	var buf bytes.Buffer
	n, err := c.DBDownload(context.Background(), "j1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "-- dump\n", buf.String())
}

func TestManifestPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "j1", q.Get("id"))
		assert.Equal(t, "40", q.Get("offset"))
		assert.Equal(t, "20", q.Get("limit"))
		json.NewEncoder(w).Encode(protocol.ManifestPageResponse{
			JobID: "j1",
			Files: []protocol.FileEntry{{Path: "a.txt", Size: 1}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	page, err := c.ManifestPage(context.Background(), "j1", 40, 20)
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "a.txt", page.Files[0].Path)
}

func TestFetchBatchPostsPaths(t *testing.T) {
	var got protocol.BatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "zip-bytes")
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	body, err := c.FetchBatch(context.Background(), []string{"a.txt", "b.txt"})
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, []string{"a.txt", "b.txt"}, got.Paths)
}
