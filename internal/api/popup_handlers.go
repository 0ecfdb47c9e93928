package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/better-wallet/dapp-broker/internal/broker"
	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/logger"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
)

// handleApprovalReply handles POST /v1/popup/replies
func (s *Server) handleApprovalReply(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apperrors.ErrBadRequest)
		return
	}

	if err := s.deps.Broker.HandleApprovalReply(r.Context(), raw); err != nil {
		logger.Warn(r.Context(), "approval reply refused", "error", err)
		s.writeError(w, replyError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// replyError maps a refused approval reply onto a transport error
func replyError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, broker.ErrDropped), errors.Is(err, gate.ErrMalformed):
		return apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Malformed approval reply", err.Error(), http.StatusBadRequest)
	case errors.Is(err, gate.ErrNoMatch):
		return apperrors.New(apperrors.ErrCodeNotFound,
			"No open approval for this request id", http.StatusNotFound)
	default:
		return apperrors.New(apperrors.ErrCodeForbidden,
			"Approval ticket rejected", http.StatusForbidden)
	}
}

// handlePopupEvent handles POST /v1/popup/events
func (s *Server) handlePopupEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apperrors.ErrBadRequest)
		return
	}

	forwarded, err := s.deps.Broker.HandlePopupEvent(r.Context(), raw)
	if err != nil {
		if errors.Is(err, broker.ErrDropped) {
			s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
				"Malformed popup event", err.Error(), http.StatusBadRequest))
			return
		}
		logger.Error(r.Context(), "failed to handle popup event", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"forwarded": forwarded})
}

// handleListPending handles GET /v1/popup/pending
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Approvals.Pending()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"approvals": pending,
		"count":     len(pending),
	})
}

// handleLaunches handles GET /v1/popup/launches. A surface host keeps this
// stream open to receive launch requests from the hub launcher.
func (s *Server) handleLaunches(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, &s.popupWS, gate.LaunchTopic)
}
