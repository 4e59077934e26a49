package nop_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/efabox/instapay-api/internal/common"
	"github.com/efabox/instapay-api/internal/nop"
)

func newClientFor(server *httptest.Server) *nop.Client {
	return &nop.Client{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Timeout:    2 * time.Second,
	}
}

func TestGenerateTransactionID(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/generateNewTransactionId", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_id":"TX-2024-0001","created_at":"2024-06-01T10:00:00Z"}`))
	}))
	defer server.Close()

	tx, err := newClientFor(server).GenerateTransactionID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "TX-2024-0001", tx.ID)
	require.Equal(t, "2024-06-01T10:00:00Z", tx.CreatedAt)
}

func TestGenerateTransactionIDServerError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClientFor(server).GenerateTransactionID(context.Background())
	require.Error(t, err)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeTransactionID, appErr.Code)
	require.Contains(t, appErr.Err.Error(), "HTTP 500")
}

func TestGenerateTransactionIDBadBody(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := newClientFor(server).GenerateTransactionID(context.Background())
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeTransactionID, appErr.Code)
}

func TestGenerateTransactionIDEmptyID(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transaction_id":"","created_at":"2024-06-01T10:00:00Z"}`))
	}))
	defer server.Close()

	_, err := newClientFor(server).GenerateTransactionID(context.Background())
	require.Error(t, err)
}

func TestGenerateTransactionIDNetworkFailure(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newClientFor(server)
	server.Close()

	_, err := client.GenerateTransactionID(context.Background())
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeTransactionID, appErr.Code)
}

func TestGenerateTransactionIDHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newClientFor(server)
	client.Timeout = 0
	_, err := client.GenerateTransactionID(ctx)
	require.Error(t, err)
}
