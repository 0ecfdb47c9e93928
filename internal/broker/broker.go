// Package broker routes page requests to their handlers. It enforces the
// checks every request passes before a handler runs (channel context,
// stored wallets, block list, one open request per channel) and records
// each accepted request in the activity log.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/keyexec"
	"github.com/better-wallet/dapp-broker/internal/ledger"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/metrics"
	"github.com/better-wallet/dapp-broker/internal/origin"
	"github.com/better-wallet/dapp-broker/internal/policy"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/google/uuid"
)

// ErrDropped is returned when an envelope is discarded without a reply
var ErrDropped = errors.New("envelope dropped")

// Request outcomes reported to metrics
const (
	outcomeOK        = "ok"
	outcomeFailed    = "failed"
	outcomeBlocked   = "blocked"
	outcomeBusy      = "busy"
	outcomeNoTab     = "no_tab"
	outcomeNoWallets = "no_wallets"
	outcomeDropped   = "dropped"
)

// CapabilityChecker reads and extends capability grants
type CapabilityChecker interface {
	Grant(ctx context.Context, origin string, caps []types.Capability) ([]types.Capability, error)
	HasAll(ctx context.Context, origin string, required []types.Capability) (bool, error)
	Get(ctx context.Context, origin string) ([]types.Capability, error)
}

// BlockChecker reports whether a page address may issue requests
type BlockChecker interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
}

// ActivityLog records accepted requests
type ActivityLog interface {
	Append(ctx context.Context, event *types.ActivityEvent) error
}

// Wallets exposes the stored keyfiles
type Wallets interface {
	HasWallets(ctx context.Context) (bool, error)
	ActiveAddress(ctx context.Context) (string, error)
	Addresses(ctx context.Context) ([]string, error)
	OpenActive(ctx context.Context, passphrase string) (*keyexec.Keyfile, error)
}

// Approver asks the user to approve a request
type Approver interface {
	Request(ctx context.Context, req gate.Request) (*types.ApprovalReply, error)
	Resolve(ctx context.Context, reply *types.ApprovalReply) error
	Fail(ctx context.Context, reply *types.ApprovalReply) error
}

// TransactionSigner signs a transaction with an open keyfile
type TransactionSigner interface {
	SignTransaction(ctx context.Context, tx *types.Transaction, kf *keyexec.Keyfile, opts *types.SignatureOptions) (*types.Transaction, error)
}

// SessionKeys caches the vault decryption key between requests
type SessionKeys interface {
	Key() (string, bool)
	Unlocked() bool
	Unlock(key string)
	Lock()
}

// Publisher pushes messages to page channels
type Publisher interface {
	Publish(topic string, msg []byte) int
}

// ChannelTopic is the relay topic carrying events for a page channel
func ChannelTopic(channelID string) string {
	return "channel:" + channelID
}

// ReplyFunc delivers a response to the channel the request came from
type ReplyFunc func(ctx context.Context, resp *types.Response) error

// Config holds Broker settings
type Config struct {
	AppName    string
	AppVersion string
}

// Deps groups the Broker's collaborators
type Deps struct {
	Capabilities CapabilityChecker
	BlockList    BlockChecker
	Activity     ActivityLog
	Wallets      Wallets
	Approver     Approver
	Signer       TransactionSigner
	Session      SessionKeys
	Fees         ledger.FeeQuoter
	Policy       *policy.Engine
	Publisher    Publisher
	Metrics      metrics.Recorder
}

// Broker dispatches page requests
type Broker struct {
	cfg       Config
	deps      Deps
	validator *Validator
	pending   *pendingTable
	handlers  map[string]handlerFunc

	mu            sync.Mutex
	activeChannel types.Channel
}

// request is an accepted page request passed to a handler
type request struct {
	channel  types.Channel
	origin   string
	envelope *types.Envelope
}

type handlerFunc func(ctx context.Context, req *request) *types.Response

// New creates a Broker
func New(cfg Config, deps Deps) (*Broker, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}

	b := &Broker{
		cfg:       cfg,
		deps:      deps,
		validator: validator,
		pending:   newPendingTable(),
	}
	b.handlers = map[string]handlerFunc{
		types.KindConnect:          b.handleConnect,
		types.KindGetActiveAddress: b.handleGetActiveAddress,
		types.KindGetAllAddresses:  b.handleGetAllAddresses,
		types.KindGetPermissions:   b.handleGetPermissions,
		types.KindSignTransaction:  b.handleSignTransaction,
	}
	return b, nil
}

// Dispatch routes one raw page envelope received on ch. The response, if
// any, is delivered through reply. ErrDropped means the envelope was
// discarded silently; an unknown type is ignored and returns nil without
// calling reply.
func (b *Broker) Dispatch(ctx context.Context, ch types.Channel, raw []byte, reply ReplyFunc) error {
	var head struct {
		Type   string `json:"type"`
		Sender string `json:"sender"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		b.deps.Metrics.RequestHandled("unknown", outcomeDropped)
		return ErrDropped
	}

	handler, ok := b.handlers[head.Type]
	if !ok {
		logger.Debug(ctx, "ignoring unknown request type", "kind", head.Type)
		return nil
	}
	kind := head.Type

	if head.Sender != types.SenderAPI {
		b.deps.Metrics.RequestHandled(kind, outcomeDropped)
		return ErrDropped
	}
	if err := b.validator.Validate(kind, raw); err != nil {
		logger.Debug(ctx, "dropping envelope that fails its schema", "kind", kind, "error", err)
		b.deps.Metrics.RequestHandled(kind, outcomeDropped)
		return ErrDropped
	}

	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.deps.Metrics.RequestHandled(kind, outcomeDropped)
		return ErrDropped
	}

	resp := b.route(ctx, ch, kind, &env, handler)
	return reply(ctx, resp)
}

func (b *Broker) route(ctx context.Context, ch types.Channel, kind string, env *types.Envelope, handler handlerFunc) *types.Response {
	if !ch.Valid() {
		b.deps.Metrics.RequestHandled(kind, outcomeNoTab)
		return b.fail(kind, apperrors.ErrNoTab)
	}

	hasWallets, err := b.deps.Wallets.HasWallets(ctx)
	if err != nil {
		logger.Error(ctx, "failed to check stored wallets", "error", err)
		b.deps.Metrics.RequestHandled(kind, outcomeFailed)
		return b.fail(kind, apperrors.ErrInternalError)
	}
	if !hasWallets {
		b.deps.Metrics.RequestHandled(kind, outcomeNoWallets)
		return b.fail(kind, apperrors.ErrNoWallets)
	}

	blocked, err := b.deps.BlockList.IsBlocked(ctx, ch.URL)
	if err != nil {
		logger.Error(ctx, "failed to check block list", "error", err)
		b.deps.Metrics.RequestHandled(kind, outcomeFailed)
		return b.fail(kind, apperrors.ErrInternalError)
	}
	if blocked {
		logger.Info(ctx, "request from blocked site", "kind", kind, "channel_id", ch.ID)
		b.deps.Metrics.RequestHandled(kind, outcomeBlocked)
		return b.fail(kind, apperrors.ErrSiteBlocked)
	}

	pageOrigin, err := origin.Resolve(ch.URL)
	if err != nil {
		b.deps.Metrics.RequestHandled(kind, outcomeNoTab)
		return b.fail(kind, apperrors.ErrNoTab)
	}
	ctx = logger.WithChannel(ctx, ch.ID, pageOrigin)

	if !b.pending.acquire(ch.ID, kind) {
		logger.Info(ctx, "rejecting request while another is pending", "kind", kind)
		b.deps.Metrics.RequestHandled(kind, outcomeBusy)
		return b.fail(kind, apperrors.ErrBusy)
	}
	defer b.pending.release(ch.ID)

	b.setActiveChannel(ch)

	if err := b.deps.Activity.Append(ctx, &types.ActivityEvent{
		ID:     uuid.NewString(),
		Kind:   kind,
		Origin: pageOrigin,
		URL:    ch.URL,
	}); err != nil {
		logger.Error(ctx, "failed to record activity", "error", err)
		b.deps.Metrics.RequestHandled(kind, outcomeFailed)
		return b.fail(kind, apperrors.ErrInternalError)
	}

	resp := handler(ctx, &request{channel: ch, origin: pageOrigin, envelope: env})
	if resp.Res {
		b.deps.Metrics.RequestHandled(kind, outcomeOK)
	} else {
		b.deps.Metrics.RequestHandled(kind, outcomeFailed)
	}
	return resp
}

// OpenRequests returns the number of channels with a request in flight
func (b *Broker) OpenRequests() int {
	return b.pending.size()
}

// ActiveChannel returns the channel of the most recent accepted request
func (b *Broker) ActiveChannel() (types.Channel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeChannel, b.activeChannel.Valid()
}

func (b *Broker) setActiveChannel(ch types.Channel) {
	b.mu.Lock()
	b.activeChannel = ch
	b.mu.Unlock()
}

// respond builds a successful response for kind
func (b *Broker) respond(kind string) *types.Response {
	return &types.Response{
		Type:   types.ResultKind(kind),
		Ext:    b.cfg.AppName,
		Sender: types.SenderBackground,
		Res:    true,
	}
}

// fail builds a failed response carrying appErr's page-facing message
func (b *Broker) fail(kind string, appErr *apperrors.AppError) *types.Response {
	return &types.Response{
		Type:    types.ResultKind(kind),
		Ext:     b.cfg.AppName,
		Sender:  types.SenderBackground,
		Res:     false,
		Message: appErr.Message,
	}
}

// appTag is the value of the App-Name tag stamped on signed transactions
func (b *Broker) appTag() string {
	if b.cfg.AppVersion == "" {
		return b.cfg.AppName
	}
	return b.cfg.AppName + " " + b.cfg.AppVersion
}
