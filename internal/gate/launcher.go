package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/relay"
)

// Approval surface dimensions
const (
	SurfaceWidth  = 385
	SurfaceHeight = 635
)

// LaunchTopic is the relay topic HubLauncher publishes on
const LaunchTopic = "popup-launch"

// LaunchRequest asks a launcher to open the approval surface at URL
type LaunchRequest struct {
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Launcher opens the approval surface
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// ErrNoSurface is returned by HubLauncher when nothing is listening
var ErrNoSurface = fmt.Errorf("no approval surface is connected")

// HubLauncher publishes launch requests to connected surface hosts
type HubLauncher struct {
	hub *relay.Hub
}

// NewHubLauncher creates a HubLauncher
func NewHubLauncher(hub *relay.Hub) *HubLauncher {
	return &HubLauncher{hub: hub}
}

func (l *HubLauncher) Launch(_ context.Context, req LaunchRequest) error {
	msg, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode launch request: %w", err)
	}
	if l.hub.Publish(LaunchTopic, msg) == 0 {
		return ErrNoSurface
	}
	return nil
}

// LaunchURLEnv carries the surface URL to ExecLauncher commands. The URL
// holds the approval ticket, so it is kept out of the argument list.
const LaunchURLEnv = "APPROVAL_SURFACE_URL"

// ExecLauncher runs a local command with the width and height appended
// as arguments and the surface URL in LaunchURLEnv, e.g. a wrapper that
// opens a browser in app mode
type ExecLauncher struct {
	argv []string
}

// NewExecLauncher creates an ExecLauncher from a space-separated command line
func NewExecLauncher(commandLine string) (*ExecLauncher, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("launch command is required")
	}
	return &ExecLauncher{argv: fields}, nil
}

func (l *ExecLauncher) Launch(ctx context.Context, req LaunchRequest) error {
	// The surface outlives this request; only the start is awaited.
	cmd := l.command(req)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start approval surface: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn(ctx, "approval surface exited with error", "request_id", req.RequestID, "error", err)
		}
	}()
	return nil
}

func (l *ExecLauncher) command(req LaunchRequest) *exec.Cmd {
	args := append(append([]string(nil), l.argv[1:]...),
		strconv.Itoa(req.Width), strconv.Itoa(req.Height))
	cmd := exec.Command(l.argv[0], args...)
	cmd.Env = append(os.Environ(), LaunchURLEnv+"="+req.URL)
	return cmd
}

// LogLauncher only logs the launch; the surface is expected to poll
// the pending list
type LogLauncher struct{}

func (LogLauncher) Launch(ctx context.Context, req LaunchRequest) error {
	logger.Info(ctx, "approval required", "request_id", req.RequestID)
	return nil
}

var (
	_ Launcher = (*HubLauncher)(nil)
	_ Launcher = (*ExecLauncher)(nil)
	_ Launcher = LogLauncher{}
)
