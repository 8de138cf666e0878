package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/absmach/cohort/pkg/server"
	httpserver "github.com/absmach/cohort/pkg/server/http"
	"github.com/stretchr/testify/assert"
)

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hs := httpserver.NewServer(ctx, cancel, "test", server.Config{Host: "127.0.0.1", Port: "0"}, http.NotFoundHandler(), logger)

	done := make(chan error, 1)
	go func() {
		done <- hs.Start()
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
