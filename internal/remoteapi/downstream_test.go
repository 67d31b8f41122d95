package remoteapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownstreamWriteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "76561197960434622", r.URL.Query().Get("account_id"))
		assert.Equal(t, "alice", r.URL.Query().Get("submitter"))
		assert.Equal(t, "downstream-key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewDownstreamClient(srv.URL, "downstream-key")
	outcome, err := c.Write(context.Background(), "76561197960434622", "alice")
	assert.NoError(t, err)
	assert.Equal(t, WriteSuccess, outcome)
}

func TestDownstreamWriteAlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Link already exists for this account"))
	}))
	defer srv.Close()

	c := NewDownstreamClient(srv.URL, "downstream-key")
	outcome, err := c.Write(context.Background(), "76561197960434622", "alice")
	assert.NoError(t, err)
	assert.Equal(t, WriteAlreadyExists, outcome)
}

func TestDownstreamWriteRetryableOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewDownstreamClient(srv.URL, "downstream-key")
	outcome, err := c.Write(context.Background(), "76561197960434622", "alice")
	assert.Error(t, err)
	assert.Equal(t, WriteRetryable, outcome)
}

func TestDownstreamWritePermanentOnOther4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid submitter"))
	}))
	defer srv.Close()

	c := NewDownstreamClient(srv.URL, "downstream-key")
	outcome, err := c.Write(context.Background(), "76561197960434622", "alice")
	assert.Error(t, err)
	assert.Equal(t, WritePermanent, outcome)
}

func TestDownstreamWriteRetryableOnNetworkError(t *testing.T) {
	c := NewDownstreamClient("http://127.0.0.1:1", "downstream-key")
	outcome, err := c.Write(context.Background(), "76561197960434622", "alice")
	assert.Error(t, err)
	assert.Equal(t, WriteRetryable, outcome)
}
