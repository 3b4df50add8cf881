package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aptos-Scan/aptos-indexer/internal/api/handler"
)

func TestServer_ServesUntilCancelled(t *testing.T) {
	s := NewServer(&handler.Handler{
		Gatherer:      prometheus.NewRegistry(),
		Logger:        zap.NewNop(),
		ProcessorName: "custom_processor",
	}, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var addr string
	select {
	case a := <-s.Ready():
		addr = a.String()
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_BindFailure(t *testing.T) {
	s := NewServer(&handler.Handler{Logger: zap.NewNop()}, "256.0.0.1:0")
	require.Error(t, s.Run(context.Background()))
}
