package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
)

func newRunServer() *Server {
	cfg := common.NewDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return NewServer(&app.App{Config: cfg, Logger: common.NewSilentLogger()})
}

func TestServerRun_StopsOnContextCancel(t *testing.T) {
	srv := newRunServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServerRun_StopsOnShutdownRequest(t *testing.T) {
	srv := newRunServer()

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	srv.shutdownChan <- struct{}{}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown request")
	}
}

func TestServerRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := common.NewDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(&app.App{Config: cfg, Logger: common.NewSilentLogger()})

	select {
	case err := <-runAsync(srv):
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not report the listen error")
	}
}

func runAsync(srv *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()
	return done
}
