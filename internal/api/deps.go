package api

import (
	"context"

	"github.com/better-wallet/dapp-broker/internal/broker"
	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/internal/vault"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// Dispatcher is the subset of broker.Broker used by the API layer.
// It is an interface to allow handler-level unit tests without the
// full broker graph.
type Dispatcher interface {
	Dispatch(ctx context.Context, ch types.Channel, raw []byte, reply broker.ReplyFunc) error
	HandleApprovalReply(ctx context.Context, raw []byte) error
	HandlePopupEvent(ctx context.Context, raw []byte) (bool, error)
	OpenRequests() int
}

// ApprovalLister lists open approvals for the approval surface
type ApprovalLister interface {
	Pending() []gate.Pending
}

// WalletManager is the subset of vault.Vault used by the management API
type WalletManager interface {
	AddKeyfile(ctx context.Context, plaintext []byte, passphrase string) (string, error)
	Addresses(ctx context.Context) ([]string, error)
	ActiveAddress(ctx context.Context) (string, error)
	SetActiveAddress(ctx context.Context, address string) error
	RemoveKeyfile(ctx context.Context, address string) error
	Unlock(ctx context.Context, session *vault.Session, passphrase string) error
}

// PermissionManager is the subset of permissions.CapabilityStore used by
// the management API
type PermissionManager interface {
	Grant(ctx context.Context, origin string, caps []types.Capability) ([]types.Capability, error)
	Get(ctx context.Context, origin string) ([]types.Capability, error)
	Revoke(ctx context.Context, origin string) error
	List(ctx context.Context) ([]*types.CapabilityGrant, error)
}

// BlockManager is the subset of permissions.BlockList used by the
// management API
type BlockManager interface {
	Block(ctx context.Context, entry string) (string, error)
	Unblock(ctx context.Context, entry string) error
	List(ctx context.Context) ([]*types.BlockEntry, error)
}

// ActivityReader reads the activity log
type ActivityReader interface {
	List(ctx context.Context, q storage.ActivityQuery) ([]*types.ActivityEvent, error)
}
