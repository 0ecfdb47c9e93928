package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/better-wallet/dapp-broker/internal/broker"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/middleware"
	"github.com/better-wallet/dapp-broker/internal/relay"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/gorilla/websocket"
)

// ChannelIDHeader names the page channel a request arrived on
const ChannelIDHeader = "X-Channel-ID"

// handlePageRequest handles POST /v1/requests. The call blocks until the
// broker produced the response envelope, which may include the time the
// user spends on the approval surface.
func (s *Server) handlePageRequest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Failed to read request body", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}

	ch := types.Channel{
		ID:  r.Header.Get(ChannelIDHeader),
		URL: r.Header.Get(middleware.PageURLHeader),
	}

	replied := false
	reply := func(_ context.Context, resp *types.Response) error {
		replied = true
		s.writeJSON(w, http.StatusOK, resp)
		return nil
	}

	if err := s.deps.Broker.Dispatch(r.Context(), ch, raw, reply); err != nil {
		if errors.Is(err, broker.ErrDropped) {
			logger.Debug(r.Context(), "page envelope dropped", "channel_id", ch.ID, "error", err)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Error(r.Context(), "failed to dispatch page request", "channel_id", ch.ID, "error", err)
		if !replied {
			s.writeError(w, apperrors.ErrInternalError)
		}
		return
	}

	if !replied {
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleChannelEvents handles GET /v1/channels/{id}/events. Events the
// broker forwards to the channel are streamed as websocket text frames.
func (s *Server) handleChannelEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request parameters", "channel id is required", http.StatusBadRequest))
		return
	}
	s.stream(w, r, &s.pageWS, broker.ChannelTopic(id))
}

// stream upgrades r and pumps topic into the connection until either side
// goes away
func (s *Server) stream(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, topic string) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn(r.Context(), "websocket upgrade failed", "topic", topic, "error", err)
		return
	}

	if s.deps.Hub == nil {
		_ = conn.Close()
		return
	}
	sub := s.deps.Hub.Subscribe(topic)
	logger.Debug(r.Context(), "websocket subscribed", "topic", topic)
	if err := relay.Pump(r.Context(), conn, sub); err != nil {
		logger.Debug(r.Context(), "websocket closed", "topic", topic, "error", err)
	}
}
