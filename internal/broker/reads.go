package broker

import (
	"context"

	"github.com/better-wallet/dapp-broker/internal/logger"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// require reports whether the request's origin holds caps. A false result
// comes with the response to send.
func (b *Broker) require(ctx context.Context, kind string, req *request, caps ...types.Capability) (*types.Response, bool) {
	ok, err := b.deps.Capabilities.HasAll(ctx, req.origin, caps)
	if err != nil {
		logger.Error(ctx, "failed to read capabilities", "error", err)
		return b.fail(kind, apperrors.ErrInternalError), false
	}
	if !ok {
		return b.fail(kind, apperrors.ErrPermissionDenied), false
	}
	return nil, true
}

func (b *Broker) handleGetActiveAddress(ctx context.Context, req *request) *types.Response {
	kind := types.KindGetActiveAddress
	if resp, ok := b.require(ctx, kind, req, types.CapAccessAddress); !ok {
		return resp
	}

	address, err := b.deps.Wallets.ActiveAddress(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read active address", "error", err)
		return b.fail(kind, apperrors.LookupFailed(apperrors.MsgActiveAddressFailed, err.Error()))
	}

	resp := b.respond(kind)
	resp.Address = address
	return resp
}

func (b *Broker) handleGetAllAddresses(ctx context.Context, req *request) *types.Response {
	kind := types.KindGetAllAddresses
	if resp, ok := b.require(ctx, kind, req, types.CapAccessAllAddresses); !ok {
		return resp
	}

	addresses, err := b.deps.Wallets.Addresses(ctx)
	if err != nil || len(addresses) == 0 {
		logger.Warn(ctx, "failed to list addresses", "error", err)
		return b.fail(kind, apperrors.LookupFailed(apperrors.MsgAllAddressesFailed, ""))
	}

	resp := b.respond(kind)
	resp.Addresses = addresses
	return resp
}

func (b *Broker) handleGetPermissions(ctx context.Context, req *request) *types.Response {
	kind := types.KindGetPermissions

	caps, err := b.deps.Capabilities.Get(ctx, req.origin)
	if err != nil {
		logger.Error(ctx, "failed to read capabilities", "error", err)
		return b.fail(kind, apperrors.ErrInternalError)
	}

	resp := b.respond(kind)
	resp.Permissions = caps
	return resp
}
