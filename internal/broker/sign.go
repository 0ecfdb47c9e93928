package broker

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/keyexec"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/policy"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
)

// AppNameTag is the tag stamped on every transaction the broker signs
const AppNameTag = "App-Name"

// Signing paths reported to metrics
const (
	pathAuto     = "auto"
	pathApproved = "approved"
)

type signState int

const (
	stateStart signState = iota
	stateFeeLookup
	stateDecide
	stateAutoSign
	stateAwaitApproval
	stateDecryptAndSign
	stateDone
	stateFailed
)

func (s signState) String() string {
	switch s {
	case stateStart:
		return "START"
	case stateFeeLookup:
		return "FEE_LOOKUP"
	case stateDecide:
		return "DECIDE"
	case stateAutoSign:
		return "AUTO_SIGN"
	case stateAwaitApproval:
		return "AWAIT_APPROVAL"
	case stateDecryptAndSign:
		return "DECRYPT_AND_SIGN"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// signingRun carries one sign_transaction request through its states
type signingRun struct {
	b   *Broker
	req *request

	state   signState
	tx      *types.Transaction
	fee     *big.Int
	path    string
	key     string
	signed  *types.Transaction
	failure *apperrors.AppError
}

func (b *Broker) handleSignTransaction(ctx context.Context, req *request) *types.Response {
	run := &signingRun{b: b, req: req, state: stateStart}
	run.execute(ctx)

	if run.state == stateFailed {
		if run.path != "" {
			b.deps.Metrics.SigningFinished(run.path, outcomeFailed)
		}
		return b.fail(types.KindSignTransaction, run.failure)
	}

	b.deps.Metrics.SigningFinished(run.path, outcomeOK)
	resp := b.respond(types.KindSignTransaction)
	resp.Message = "Success"
	resp.Transaction = run.signed
	return resp
}

func (r *signingRun) execute(ctx context.Context) {
	for r.state != stateDone && r.state != stateFailed {
		logger.Debug(ctx, "signing state", "state", r.state.String())

		switch r.state {
		case stateStart:
			r.start(ctx)
		case stateFeeLookup:
			r.feeLookup(ctx)
		case stateDecide:
			r.decide(ctx)
		case stateAutoSign:
			r.autoSign()
		case stateAwaitApproval:
			r.awaitApproval(ctx)
		case stateDecryptAndSign:
			r.decryptAndSign(ctx)
		}
	}
	logger.Debug(ctx, "signing state", "state", r.state.String())
}

func (r *signingRun) fail(appErr *apperrors.AppError) {
	r.failure = appErr
	r.state = stateFailed
}

func (r *signingRun) start(ctx context.Context) {
	ok, err := r.b.deps.Capabilities.HasAll(ctx, r.req.origin, []types.Capability{types.CapSignTransaction})
	if err != nil {
		logger.Error(ctx, "failed to read capabilities", "error", err)
		r.fail(apperrors.ErrInternalError)
		return
	}
	if !ok {
		r.fail(apperrors.ErrPermissionDenied)
		return
	}

	tx := r.req.envelope.Transaction
	if tx == nil || isEmptyTransaction(tx) {
		r.fail(apperrors.MissingField(apperrors.MsgNoTransaction))
		return
	}
	r.tx = tx.Clone()
	r.state = stateFeeLookup
}

func (r *signingRun) feeLookup(ctx context.Context) {
	data, err := r.tx.DataBytes()
	if err != nil {
		logger.Warn(ctx, "transaction data is not decodable", "error", err)
		r.fail(apperrors.ErrSigningFailed)
		return
	}

	started := time.Now()
	fee, err := r.b.deps.Fees.Quote(ctx, len(data), r.tx.Target)
	r.b.deps.Metrics.FeeQuoted(time.Since(started), err)
	if err != nil {
		logger.Warn(ctx, "fee lookup failed", "error", err)
		r.fail(apperrors.ErrSigningFailed)
		return
	}
	r.fee = fee
	r.state = stateDecide
}

func (r *signingRun) decide(ctx context.Context) {
	quantity, err := r.tx.QuantityAmount()
	if err != nil {
		r.fail(apperrors.ErrSigningFailed)
		return
	}

	result := r.b.deps.Policy.Evaluate(ctx, policy.EvaluationContext{
		Fee:             r.fee,
		Quantity:        quantity,
		SessionUnlocked: r.b.deps.Session.Unlocked(),
	})
	logger.Debug(ctx, "auto-approve decision",
		"decision", result.Decision.String(),
		"reason", result.Reason,
		"exposure", result.Exposure.String())

	if result.Decision == policy.DecisionAutoSign {
		r.state = stateAutoSign
		return
	}
	r.state = stateAwaitApproval
}

func (r *signingRun) autoSign() {
	key, ok := r.b.deps.Session.Key()
	if !ok {
		// locked since DECIDE
		r.state = stateAwaitApproval
		return
	}
	r.key = key
	r.path = pathAuto
	r.state = stateDecryptAndSign
}

func (r *signingRun) awaitApproval(ctx context.Context) {
	r.path = pathApproved

	reply, err := r.b.deps.Approver.Request(ctx, gate.Request{
		Kind:        types.KindSignAuth,
		Origin:      r.req.origin,
		URL:         r.req.channel.URL,
		Transaction: r.tx,
		Fee:         r.fee.String(),
	})
	switch {
	case errors.Is(err, gate.ErrRejected):
		r.fail(apperrors.ErrApprovalRejected)
		return
	case errors.Is(err, gate.ErrExpired):
		r.fail(apperrors.ErrApprovalExpired)
		return
	case err != nil:
		logger.Error(ctx, "signing approval failed", "error", err)
		r.fail(apperrors.ErrSigningFailed)
		return
	}

	if reply.DecryptionKey == "" {
		logger.Warn(ctx, "signing approval carried no decryption key")
		r.fail(apperrors.ErrSigningFailed)
		return
	}
	r.key = reply.DecryptionKey
	r.state = stateDecryptAndSign
}

func (r *signingRun) decryptAndSign(ctx context.Context) {
	kf, err := r.b.deps.Wallets.OpenActive(ctx, r.key)
	if err != nil {
		if errors.Is(err, keyexec.ErrDecryptionFailed) {
			r.b.deps.Session.Lock()
		}
		logger.Warn(ctx, "failed to open active keyfile")
		r.fail(apperrors.ErrSigningFailed)
		return
	}
	defer kf.Destroy()

	if r.path == pathApproved {
		r.b.deps.Session.Unlock(r.key)
	}
	r.key = ""

	tx := r.tx.Clone()
	tx.Owner = kf.Owner()
	stampAppName(tx, r.b.appTag())

	signed, err := r.b.deps.Signer.SignTransaction(ctx, tx, kf, r.req.envelope.SignatureOptions)
	if err != nil {
		logger.Warn(ctx, "failed to sign transaction")
		r.fail(apperrors.ErrSigningFailed)
		return
	}

	logger.Info(ctx, "transaction signed", "path", r.path, "transaction_id", signed.ID)
	r.signed = signed
	r.state = stateDone
}

// stampAppName replaces any App-Name tag on tx with value
func stampAppName(tx *types.Transaction, value string) {
	tags := tx.Tags[:0:0]
	for _, t := range tx.Tags {
		if t.Name != AppNameTag {
			tags = append(tags, t)
		}
	}
	tx.Tags = tags
	tx.AddTag(AppNameTag, value)
}

func isEmptyTransaction(tx *types.Transaction) bool {
	return tx.Format == 0 &&
		tx.LastTx == "" &&
		tx.Owner == "" &&
		len(tx.Tags) == 0 &&
		tx.Target == "" &&
		tx.Quantity == "" &&
		tx.Data == "" &&
		tx.DataSize == "" &&
		tx.Reward == ""
}
