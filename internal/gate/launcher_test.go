package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/better-wallet/dapp-broker/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubLauncher(t *testing.T) {
	hub := relay.NewHub(0)
	l := NewHubLauncher(hub)
	req := LaunchRequest{RequestID: "r1", URL: "https://wallet.local/popup.html?auth=%7B%7D", Width: SurfaceWidth, Height: SurfaceHeight}

	assert.ErrorIs(t, l.Launch(context.Background(), req), ErrNoSurface)

	sub := hub.Subscribe(LaunchTopic)
	defer sub.Cancel()

	require.NoError(t, l.Launch(context.Background(), req))

	var got LaunchRequest
	require.NoError(t, json.Unmarshal(<-sub.C, &got))
	assert.Equal(t, req, got)
}

func TestExecLauncher(t *testing.T) {
	_, err := NewExecLauncher("   ")
	assert.Error(t, err)

	l, err := NewExecLauncher("true --app")
	require.NoError(t, err)
	assert.NoError(t, l.Launch(context.Background(), LaunchRequest{RequestID: "r1", URL: "https://wallet.local", Width: 1, Height: 1}))

	missing, err := NewExecLauncher("/nonexistent/browser")
	require.NoError(t, err)
	assert.Error(t, missing.Launch(context.Background(), LaunchRequest{URL: "https://wallet.local"}))
}

func TestExecLauncher_KeepsURLOutOfArguments(t *testing.T) {
	const surfaceURL = "https://wallet.local/popup.html?auth=ticket-secret"

	dir := t.TempDir()
	script := filepath.Join(dir, "open-surface")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf '%s|%s' \"$"+LaunchURLEnv+"\" \"$*\" > \"$1.tmp\" && mv \"$1.tmp\" \"$1\"\n"), 0o700))

	l, err := NewExecLauncher(script + " " + out)
	require.NoError(t, err)

	req := LaunchRequest{RequestID: "r1", URL: surfaceURL, Width: SurfaceWidth, Height: SurfaceHeight}
	cmd := l.command(req)
	assert.Equal(t, []string{script, out, "385", "635"}, cmd.Args)
	assert.Contains(t, cmd.Env, LaunchURLEnv+"="+surfaceURL)

	require.NoError(t, l.Launch(context.Background(), req))

	var got []byte
	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(out)
		got = data
		return readErr == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, surfaceURL+"|"+out+" 385 635", string(got))
}

func TestLogLauncher(t *testing.T) {
	assert.NoError(t, LogLauncher{}.Launch(context.Background(), LaunchRequest{RequestID: "r1"}))
}
