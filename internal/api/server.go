package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/middleware"
	"github.com/better-wallet/dapp-broker/internal/origin"
	"github.com/better-wallet/dapp-broker/internal/relay"
	"github.com/better-wallet/dapp-broker/internal/vault"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/gorilla/websocket"
)

// Config holds HTTP server settings
type Config struct {
	Port int
	// PopupURL is where the approval surface is served; websocket
	// upgrades on popup routes must come from its origin
	PopupURL string
	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64
}

// Deps groups the Server's collaborators
type Deps struct {
	Broker      Dispatcher
	Approvals   ApprovalLister
	Wallets     WalletManager
	Session     *vault.Session
	Permissions PermissionManager
	BlockList   BlockManager
	Activity    ActivityReader
	Hub         *relay.Hub
	Metrics     http.Handler
	PopupAuth   *middleware.TokenAuth
	RelayAuth   *middleware.TokenAuth
	RateLimiter *middleware.RateLimiter
}

// Server represents the HTTP server
type Server struct {
	config     Config
	deps       Deps
	httpServer *http.Server
	pageWS     websocket.Upgrader
	popupWS    websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new API server
func NewServer(cfg Config, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		deps:   deps,
		pageWS: websocket.Upgrader{
			// the relay token authorises channel streams; the relay host
			// has no fixed web origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		popupWS: websocket.Upgrader{CheckOrigin: popupOriginCheck(cfg.PopupURL)},
		ctx:     ctx,
		cancel:  cancel,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// page requests wait on the approval surface, so writes are unbounded
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Handler builds the routed handler with its middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}

	// Page side, submitted by the authenticated relay
	page := func(h http.HandlerFunc) http.Handler {
		var next http.Handler = h
		if s.deps.RateLimiter != nil {
			next = s.deps.RateLimiter.Limit(next)
		}
		return s.deps.RelayAuth.Authenticate(next)
	}
	mux.Handle("POST /v1/requests", page(s.handlePageRequest))
	mux.Handle("GET /v1/channels/{id}/events", page(s.handleChannelEvents))

	// Popup side
	popup := func(h http.HandlerFunc) http.Handler {
		return s.deps.PopupAuth.Authenticate(h)
	}
	mux.Handle("POST /v1/popup/replies", popup(s.handleApprovalReply))
	mux.Handle("POST /v1/popup/events", popup(s.handlePopupEvent))
	mux.Handle("GET /v1/popup/pending", popup(s.handleListPending))
	mux.Handle("GET /v1/popup/launches", popup(s.handleLaunches))

	mux.Handle("GET /v1/popup/permissions", popup(s.handleListPermissions))
	mux.Handle("POST /v1/popup/permissions", popup(s.handleGrantPermissions))
	mux.Handle("DELETE /v1/popup/permissions", popup(s.handleRevokePermissions))

	mux.Handle("GET /v1/popup/blocked", popup(s.handleListBlocked))
	mux.Handle("POST /v1/popup/blocked", popup(s.handleBlock))
	mux.Handle("DELETE /v1/popup/blocked", popup(s.handleUnblock))

	mux.Handle("GET /v1/popup/activity", popup(s.handleListActivity))

	mux.Handle("GET /v1/popup/wallets", popup(s.handleListWallets))
	mux.Handle("POST /v1/popup/wallets", popup(s.handleAddWallet))
	mux.Handle("DELETE /v1/popup/wallets/{address}", popup(s.handleRemoveWallet))
	mux.Handle("PUT /v1/popup/active-address", popup(s.handleSetActiveAddress))

	mux.Handle("POST /v1/popup/vault/unlock", popup(s.handleUnlock))
	mux.Handle("POST /v1/popup/vault/lock", popup(s.handleLock))

	// Chain: RequestID -> AccessLog -> LimitBody -> Routes
	return middleware.RequestID(
		middleware.AccessLog(
			middleware.LimitBody(s.config.MaxBodyBytes)(mux)))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. Open websocket streams and
// pending page requests are cancelled first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"session_unlocked": s.deps.Session != nil && s.deps.Session.Unlocked(),
		"open_requests":    s.deps.Broker.OpenRequests(),
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}

// popupOriginCheck accepts upgrades from the popup's origin, or with no
// Origin header at all (native surface hosts)
func popupOriginCheck(popupURL string) func(*http.Request) bool {
	want, wantErr := origin.Resolve(popupURL)
	return func(r *http.Request) bool {
		raw := r.Header.Get("Origin")
		if raw == "" {
			return true
		}
		if wantErr != nil {
			return false
		}
		got, err := origin.Resolve(raw)
		return err == nil && got == want
	}
}
