package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/origin"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// HandleApprovalReply validates a raw reply from the approval surface and
// hands it to the open approval it answers. A reply without the result
// shape is dropped; if its routing fields still identify an open approval
// that approval fails instead of waiting for the timeout.
func (b *Broker) HandleApprovalReply(ctx context.Context, raw []byte) error {
	if err := b.validator.Validate(schemaApprovalReply, raw); err != nil {
		b.failMalformedReply(ctx, raw)
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}

	var reply types.ApprovalReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}
	return b.deps.Approver.Resolve(ctx, &reply)
}

func (b *Broker) failMalformedReply(ctx context.Context, raw []byte) {
	var routing struct {
		Type      string `json:"type"`
		Sender    string `json:"sender"`
		RequestID string `json:"requestId"`
		Ticket    string `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &routing); err != nil || routing.RequestID == "" || routing.Ticket == "" {
		return
	}
	err := b.deps.Approver.Fail(ctx, &types.ApprovalReply{
		Type:      routing.Type,
		Sender:    routing.Sender,
		RequestID: routing.RequestID,
		Ticket:    routing.Ticket,
	})
	if err != nil {
		logger.Debug(ctx, "malformed reply matches no open approval", "error", err)
	}
}

// HandlePopupEvent processes a notification from the management surface.
// It reports whether the event was forwarded to a page.
func (b *Broker) HandlePopupEvent(ctx context.Context, raw []byte) (bool, error) {
	if err := b.validator.Validate(schemaPopupEvent, raw); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDropped, err)
	}

	var event types.PopupEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDropped, err)
	}

	switch event.Type {
	case types.KindSwitchWalletEvent:
		return b.forwardWalletSwitch(ctx, &event)
	default:
		logger.Debug(ctx, "ignoring popup event", "kind", event.Type)
		return false, nil
	}
}

// forwardWalletSwitch tells the active page about a wallet switch when
// its origin may read every address
func (b *Broker) forwardWalletSwitch(ctx context.Context, event *types.PopupEvent) (bool, error) {
	ch, ok := b.ActiveChannel()
	if !ok || b.deps.Publisher == nil {
		return false, nil
	}

	pageOrigin, err := origin.Resolve(ch.URL)
	if err != nil {
		return false, nil
	}
	allowed, err := b.deps.Capabilities.HasAll(ctx, pageOrigin, []types.Capability{
		types.CapAccessAllAddresses,
		types.CapAccessAddress,
	})
	if err != nil {
		return false, fmt.Errorf("failed to read capabilities: %w", err)
	}
	if !allowed {
		return false, nil
	}

	msg, err := json.Marshal(types.ForwardedEvent{
		Type:    types.KindSwitchWalletEventForward,
		Ext:     b.cfg.AppName,
		Sender:  types.SenderBackground,
		Address: event.Address,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}

	b.deps.Publisher.Publish(ChannelTopic(ch.ID), msg)
	logger.Info(ctx, "forwarded wallet switch", "channel_id", ch.ID, "origin", pageOrigin)
	return true, nil
}
