package broker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/logger"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// handleConnect asks the user to grant the requested capabilities to the
// page's origin
func (b *Broker) handleConnect(ctx context.Context, req *request) *types.Response {
	kind := types.KindConnect
	requested := types.NormalizeCapabilities(req.envelope.Permissions)
	if len(requested) == 0 {
		return b.fail(kind, apperrors.MissingField(apperrors.MsgNoPermissionsRequested))
	}

	held, err := b.deps.Capabilities.HasAll(ctx, req.origin, requested)
	if err != nil {
		logger.Error(ctx, "failed to read capabilities", "error", err)
		return b.fail(kind, apperrors.ErrInternalError)
	}
	if held {
		return b.fail(kind, apperrors.New(apperrors.ErrCodeAlreadyGranted, apperrors.MsgAlreadyGranted, 0))
	}

	reply, err := b.deps.Approver.Request(ctx, gate.Request{
		Kind:        kind,
		Origin:      req.origin,
		URL:         req.channel.URL,
		Permissions: requested,
	})
	if err != nil {
		return b.approvalFailed(ctx, kind, reply, err)
	}

	granted := grantable(requested, reply.Permissions)
	if len(granted) == 0 {
		logger.Warn(ctx, "approval named no requested capabilities", "approved", reply.Permissions)
		return b.fail(kind, apperrors.ErrApprovalRejected)
	}
	if _, err := b.deps.Capabilities.Grant(ctx, req.origin, granted); err != nil {
		logger.Error(ctx, "failed to store capabilities", "error", err)
		return b.fail(kind, apperrors.ErrInternalError)
	}
	logger.Info(ctx, "capabilities granted", "permissions", granted)

	resp := b.relayReply(kind, reply)
	resp.Permissions = granted
	b.rebroadcast(ctx, req.channel, resp)
	return resp
}

// approvalFailed maps a Gate failure onto a response. A declining reply
// is relayed as the user sent it.
func (b *Broker) approvalFailed(ctx context.Context, kind string, reply *types.ApprovalReply, err error) *types.Response {
	switch {
	case errors.Is(err, gate.ErrRejected) && reply != nil:
		resp := b.relayReply(kind, reply)
		if resp.Message == "" {
			resp.Message = apperrors.MsgApprovalRejected
		}
		return resp
	case errors.Is(err, gate.ErrExpired):
		return b.fail(kind, apperrors.ErrApprovalExpired)
	default:
		logger.Error(ctx, "approval failed", "kind", kind, "error", err)
		return b.fail(kind, apperrors.ErrApprovalRejected)
	}
}

// relayReply copies the user-facing part of an approval reply into a
// response envelope
func (b *Broker) relayReply(kind string, reply *types.ApprovalReply) *types.Response {
	resp := b.respond(kind)
	resp.Res = reply.Res
	resp.Message = reply.Message
	resp.Permissions = reply.Permissions
	return resp
}

// rebroadcast pushes resp to the page channel's event stream
func (b *Broker) rebroadcast(ctx context.Context, ch types.Channel, resp *types.Response) {
	if b.deps.Publisher == nil {
		return
	}
	msg, err := json.Marshal(resp)
	if err != nil {
		logger.Warn(ctx, "failed to encode rebroadcast", "error", err)
		return
	}
	b.deps.Publisher.Publish(ChannelTopic(ch.ID), msg)
}

// grantable returns the capabilities an approval grants: those the reply
// names that were also requested, or every requested one when the reply
// names none
func grantable(requested, approved []types.Capability) []types.Capability {
	if len(approved) == 0 {
		return requested
	}
	want := make(map[types.Capability]struct{}, len(requested))
	for _, c := range requested {
		want[c] = struct{}{}
	}
	out := make([]types.Capability, 0, len(approved))
	for _, c := range approved {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return types.NormalizeCapabilities(out)
}
