package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/better-wallet/dapp-broker/internal/keyexec"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/middleware"
	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/internal/vault"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// GrantPermissionsRequest represents a management grant
type GrantPermissionsRequest struct {
	Origin      string   `json:"origin"`
	Permissions []string `json:"permissions"`
}

// BlockRequest represents a block list addition
type BlockRequest struct {
	Entry string `json:"entry"`
}

// AddWalletRequest carries a plaintext keyfile and the passphrase it is
// stored under
type AddWalletRequest struct {
	Keyfile    json.RawMessage `json:"keyfile"`
	Passphrase string          `json:"passphrase"`
}

// SetActiveAddressRequest selects the active address
type SetActiveAddressRequest struct {
	Address string `json:"address"`
}

// UnlockRequest carries the passphrase that opens the vault session
type UnlockRequest struct {
	Passphrase string `json:"passphrase"`
}

// handleListPermissions handles GET /v1/popup/permissions. With ?origin=
// it returns that origin's set, otherwise every grant.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if raw := r.URL.Query().Get("origin"); raw != "" {
		o, ok := s.resolveOrigin(w, raw)
		if !ok {
			return
		}
		caps, err := s.deps.Permissions.Get(ctx, o)
		if err != nil {
			logger.Error(ctx, "failed to read permissions", "origin", o, "error", err)
			s.writeError(w, apperrors.ErrInternalError)
			return
		}
		s.writeJSON(w, http.StatusOK, types.CapabilityGrant{Origin: o, Capabilities: caps})
		return
	}

	grants, err := s.deps.Permissions.List(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list permissions", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	if grants == nil {
		grants = []*types.CapabilityGrant{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

// handleGrantPermissions handles POST /v1/popup/permissions
func (s *Server) handleGrantPermissions(w http.ResponseWriter, r *http.Request) {
	var req GrantPermissionsRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}

	v := middleware.NewValidator()
	o, _ := v.Origin("origin", req.Origin)
	caps, _ := v.Capabilities("permissions", req.Permissions)
	if v.HasErrors() {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	held, err := s.deps.Permissions.Grant(r.Context(), o, caps)
	if err != nil {
		logger.Error(r.Context(), "failed to grant permissions", "origin", o, "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	logger.Info(r.Context(), "permissions granted", "origin", o, "permissions", caps)
	s.writeJSON(w, http.StatusOK, types.CapabilityGrant{Origin: o, Capabilities: held})
}

// handleRevokePermissions handles DELETE /v1/popup/permissions?origin=
func (s *Server) handleRevokePermissions(w http.ResponseWriter, r *http.Request) {
	o, ok := s.resolveOrigin(w, r.URL.Query().Get("origin"))
	if !ok {
		return
	}
	if err := s.deps.Permissions.Revoke(r.Context(), o); err != nil {
		logger.Error(r.Context(), "failed to revoke permissions", "origin", o, "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	logger.Info(r.Context(), "permissions revoked", "origin", o)
	w.WriteHeader(http.StatusNoContent)
}

// handleListBlocked handles GET /v1/popup/blocked
func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.BlockList.List(r.Context())
	if err != nil {
		logger.Error(r.Context(), "failed to list block list", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	if entries == nil {
		entries = []*types.BlockEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"blocked": entries})
}

// handleBlock handles POST /v1/popup/blocked
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}
	v := middleware.NewValidator()
	if !v.Required("entry", req.Entry) {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	stored, err := s.deps.BlockList.Block(r.Context(), strings.TrimSpace(req.Entry))
	if err != nil {
		logger.Error(r.Context(), "failed to block entry", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	logger.Info(r.Context(), "entry blocked", "entry", stored)
	s.writeJSON(w, http.StatusCreated, map[string]string{"entry": stored})
}

// handleUnblock handles DELETE /v1/popup/blocked?entry=
func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	entry := strings.TrimSpace(r.URL.Query().Get("entry"))
	v := middleware.NewValidator()
	if !v.Required("entry", entry) {
		middleware.WriteValidationError(w, v.Errors())
		return
	}
	if err := s.deps.BlockList.Unblock(r.Context(), entry); err != nil {
		logger.Error(r.Context(), "failed to unblock entry", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListActivity handles GET /v1/popup/activity
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := storage.ActivityQuery{
		Kind:  r.URL.Query().Get("kind"),
		Limit: defaultActivityLimit,
	}

	if raw := r.URL.Query().Get("origin"); raw != "" {
		o, ok := s.resolveOrigin(w, raw)
		if !ok {
			return
		}
		q.Origin = o
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxActivityLimit {
			v := middleware.NewValidator()
			v.AddError("limit", "must be between 1 and "+strconv.Itoa(maxActivityLimit))
			middleware.WriteValidationError(w, v.Errors())
			return
		}
		q.Limit = limit
	}

	events, err := s.deps.Activity.List(r.Context(), q)
	if err != nil {
		logger.Error(r.Context(), "failed to list activity", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	if events == nil {
		events = []*types.ActivityEvent{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleListWallets handles GET /v1/popup/wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addresses, err := s.deps.Wallets.Addresses(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list wallets", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	active, err := s.deps.Wallets.ActiveAddress(ctx)
	if err != nil && !errors.Is(err, vault.ErrNoActiveAddress) {
		logger.Error(ctx, "failed to read active address", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"addresses": addresses,
		"active":    active,
	})
}

// handleAddWallet handles POST /v1/popup/wallets
func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req AddWalletRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}

	v := middleware.NewValidator()
	if len(req.Keyfile) == 0 {
		v.AddError("keyfile", "is required")
	}
	v.MinLength("passphrase", req.Passphrase, 8)
	if v.HasErrors() {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	address, err := s.deps.Wallets.AddKeyfile(r.Context(), req.Keyfile, req.Passphrase)
	if err != nil {
		if errors.Is(err, keyexec.ErrInvalidKeyfile) {
			s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest,
				"Invalid keyfile", http.StatusBadRequest))
			return
		}
		logger.Error(r.Context(), "failed to add keyfile", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"address": address})
}

// handleRemoveWallet handles DELETE /v1/popup/wallets/{address}
func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	v := middleware.NewValidator()
	if !v.Address("address", address) {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	if err := s.deps.Wallets.RemoveKeyfile(r.Context(), address); err != nil {
		if errors.Is(err, vault.ErrUnknownAddress) {
			s.writeError(w, apperrors.ErrNotFound)
			return
		}
		logger.Error(r.Context(), "failed to remove keyfile", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetActiveAddress handles PUT /v1/popup/active-address
func (s *Server) handleSetActiveAddress(w http.ResponseWriter, r *http.Request) {
	var req SetActiveAddressRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}
	v := middleware.NewValidator()
	if !v.Address("address", req.Address) {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	if err := s.deps.Wallets.SetActiveAddress(r.Context(), req.Address); err != nil {
		if errors.Is(err, vault.ErrUnknownAddress) {
			s.writeError(w, apperrors.ErrNotFound)
			return
		}
		logger.Error(r.Context(), "failed to set active address", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	// A new active address invalidates the cached passphrase
	if s.deps.Session != nil {
		s.deps.Session.Lock()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"address": req.Address})
}

// handleUnlock handles POST /v1/popup/vault/unlock
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest,
			"Invalid request body", err.Error(), http.StatusBadRequest))
		return
	}
	v := middleware.NewValidator()
	if !v.Required("passphrase", req.Passphrase) {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	if err := s.deps.Wallets.Unlock(r.Context(), s.deps.Session, req.Passphrase); err != nil {
		switch {
		case errors.Is(err, keyexec.ErrDecryptionFailed):
			s.writeError(w, apperrors.New(apperrors.ErrCodeUnauthorized,
				"Wrong passphrase", http.StatusUnauthorized))
		case errors.Is(err, vault.ErrNoActiveAddress), errors.Is(err, vault.ErrUnknownAddress):
			s.writeError(w, apperrors.ErrNoWallets)
		default:
			logger.Error(r.Context(), "failed to unlock vault", "error", err)
			s.writeError(w, apperrors.ErrInternalError)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true})
}

// handleLock handles POST /v1/popup/vault/lock
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session != nil {
		s.deps.Session.Lock()
	}
	logger.Info(r.Context(), "vault session locked")
	s.writeJSON(w, http.StatusOK, map[string]bool{"unlocked": false})
}

// resolveOrigin canonicalizes a management-supplied page address, writing
// a validation error when it has none
func (s *Server) resolveOrigin(w http.ResponseWriter, raw string) (string, bool) {
	v := middleware.NewValidator()
	o, ok := v.Origin("origin", raw)
	if !ok {
		middleware.WriteValidationError(w, v.Errors())
	}
	return o, ok
}
