//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/exposure-cli/internal/api"
)

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func waitReady(t *testing.T, url string) {
	t.Helper()
	for range 50 {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s did not become ready", url)
}

func TestStartServer_ServesAPIAndShutsDown(t *testing.T) {
	testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := initEnv(ctx, "serve", true)
	require.NoError(t, err)
	defer env.Close()

	srv := api.New(env.Store, env.Engine, env.Validator, env.Layers, api.WithBreakers(env.Gateway.Breakers()))
	port := freePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, srv.Routes(), port)
	}()
	waitReady(t, base+"/health")

	resp, err := http.Get(base + "/v1/layers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Layers []map[string]any `json:"layers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Layers, len(env.Layers))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStartServer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	err = startServer(context.Background(), http.NewServeMux(), port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
