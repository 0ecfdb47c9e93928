package ledger

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// GatewayConfig locates a gateway node
type GatewayConfig struct {
	Host     string
	Port     int
	Protocol string
	Timeout  time.Duration
}

// GatewayQuoter asks a gateway node for the price of storing data:
// GET {protocol}://{host}:{port}/price/{bytes}[/{target}], answered with a
// plain decimal number of smallest units
type GatewayQuoter struct {
	baseURL string
	client  *http.Client
}

// NewGatewayQuoter creates a GatewayQuoter
func NewGatewayQuoter(cfg GatewayConfig) (*GatewayQuoter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("gateway host is required")
	}
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "https"
	}
	if protocol != "http" && protocol != "https" {
		return nil, fmt.Errorf("unsupported gateway protocol: %s", protocol)
	}

	host := cfg.Host
	if cfg.Port > 0 {
		host = host + ":" + strconv.Itoa(cfg.Port)
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = cfg.Timeout
	if client.Timeout <= 0 {
		client.Timeout = 10 * time.Second
	}

	return &GatewayQuoter{
		baseURL: protocol + "://" + host,
		client:  client,
	}, nil
}

// Quote implements FeeQuoter
func (q *GatewayQuoter) Quote(ctx context.Context, dataSize int, target string) (*big.Int, error) {
	if dataSize < 0 {
		return nil, fmt.Errorf("data size cannot be negative")
	}

	endpoint := q.baseURL + "/price/" + strconv.Itoa(dataSize)
	if target != "" {
		endpoint += "/" + url.PathEscape(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, fmt.Errorf("failed to read price: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price endpoint returned %d", resp.StatusCode)
	}

	fee, ok := new(big.Int).SetString(strings.TrimSpace(string(body)), 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("invalid price response: %q", strings.TrimSpace(string(body)))
	}
	return fee, nil
}
