// Package gate suspends a request until the user answers on the approval
// surface. Each open approval is keyed by a generated request id; a reply
// resolves only the approval whose id, kind and ticket it carries.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/google/uuid"
)

// DefaultTimeout bounds how long an approval may stay open
const DefaultTimeout = 5 * time.Minute

var (
	// ErrRejected is returned when the user declined
	ErrRejected = errors.New("approval rejected")
	// ErrExpired is returned when no reply arrived in time
	ErrExpired = errors.New("approval expired")
	// ErrMalformed is returned for a reply with the wrong sender or kind,
	// and to the waiting request when its reply did not have the result shape
	ErrMalformed = errors.New("malformed approval reply")
	// ErrNoMatch is returned for a reply whose request id is not open
	ErrNoMatch = errors.New("no open approval for request id")
)

// Outcomes reported to the Observer
const (
	OutcomeApproved     = "approved"
	OutcomeRejected     = "rejected"
	OutcomeExpired      = "expired"
	OutcomeMalformed    = "malformed"
	OutcomeCancelled    = "cancelled"
	OutcomeLaunchFailed = "launch_failed"
)

// Request describes what the user is asked to approve
type Request struct {
	Kind        string
	Origin      string
	URL         string
	Permissions []types.Capability
	Transaction *types.Transaction
	// Fee is the quoted network fee in smallest units, for display
	Fee string
}

// Pending is an open approval as listed to the approval surface
type Pending struct {
	ID          string             `json:"requestId"`
	Kind        string             `json:"type"`
	Origin      string             `json:"origin"`
	URL         string             `json:"url"`
	Permissions []types.Capability `json:"permissions,omitempty"`
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Fee         string             `json:"fee,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	// Ticket must be echoed in the reply
	Ticket string `json:"ticket"`
}

// Observer is notified when an approval closes
type Observer interface {
	ApprovalClosed(kind, outcome string)
}

type pendingApproval struct {
	info     Pending
	resultCh chan delivery
}

// delivery is what a reply hands to the waiting request. A nil reply
// means the reply was authentic but malformed.
type delivery struct {
	reply *types.ApprovalReply
}

// Config holds Gate settings
type Config struct {
	PopupURL string
	Timeout  time.Duration
}

// Gate is the correlation table of open approvals
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*pendingApproval
	launcher Launcher
	tickets  *TicketIssuer
	popupURL string
	timeout  time.Duration
	observer Observer
	now      func() time.Time
}

// New creates a Gate
func New(cfg Config, launcher Launcher, tickets *TicketIssuer) *Gate {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		pending:  make(map[string]*pendingApproval),
		launcher: launcher,
		tickets:  tickets,
		popupURL: cfg.PopupURL,
		timeout:  timeout,
		now:      time.Now,
	}
}

// SetObserver registers o for close notifications
func (g *Gate) SetObserver(o Observer) {
	g.observer = o
}

// Request opens the approval surface and waits for the matching reply,
// the timeout or ctx. An approving reply is returned with a nil error. A
// declining reply is returned together with ErrRejected so callers can
// relay it.
func (g *Gate) Request(ctx context.Context, req Request) (*types.ApprovalReply, error) {
	id := uuid.NewString()
	ticket, expiresAt, err := g.tickets.Issue(id, req.Kind, g.timeout)
	if err != nil {
		return nil, err
	}

	p := &pendingApproval{
		info: Pending{
			ID:          id,
			Kind:        req.Kind,
			Origin:      req.Origin,
			URL:         req.URL,
			Permissions: req.Permissions,
			Transaction: req.Transaction,
			Fee:         req.Fee,
			CreatedAt:   g.now(),
			ExpiresAt:   expiresAt,
			Ticket:      ticket,
		},
		resultCh: make(chan delivery, 1),
	}

	g.mu.Lock()
	g.pending[id] = p
	g.mu.Unlock()
	defer g.remove(id)

	logger.Info(ctx, "approval requested", "approval_id", id, "kind", req.Kind)

	launchURL, err := g.launchURL(p)
	if err != nil {
		g.closed(req.Kind, OutcomeLaunchFailed)
		return nil, err
	}
	if err := g.launcher.Launch(ctx, LaunchRequest{
		RequestID: id,
		URL:       launchURL,
		Width:     SurfaceWidth,
		Height:    SurfaceHeight,
	}); err != nil {
		g.closed(req.Kind, OutcomeLaunchFailed)
		return nil, fmt.Errorf("failed to open approval surface: %w", err)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case res := <-p.resultCh:
		reply := res.reply
		if reply == nil {
			g.closed(req.Kind, OutcomeMalformed)
			return nil, ErrMalformed
		}
		if !reply.Res {
			g.closed(req.Kind, OutcomeRejected)
			return reply, ErrRejected
		}
		g.closed(req.Kind, OutcomeApproved)
		return reply, nil
	case <-timer.C:
		logger.Warn(ctx, "approval expired", "approval_id", id, "kind", req.Kind)
		g.closed(req.Kind, OutcomeExpired)
		return nil, ErrExpired
	case <-ctx.Done():
		g.closed(req.Kind, OutcomeCancelled)
		return nil, ctx.Err()
	}
}

// Resolve delivers reply to the approval it answers. Replies that do not
// match an open approval exactly are refused and leave it open.
func (g *Gate) Resolve(ctx context.Context, reply *types.ApprovalReply) error {
	p, err := g.take(reply)
	if err != nil {
		return err
	}
	p.resultCh <- delivery{reply: reply}

	logger.Info(ctx, "approval resolved", "approval_id", reply.RequestID, "kind", p.info.Kind, "approved", reply.Res)
	return nil
}

// Fail closes the approval that reply answers with ErrMalformed. reply
// only needs its routing fields (sender, type, request id and ticket);
// they are checked exactly as in Resolve.
func (g *Gate) Fail(ctx context.Context, reply *types.ApprovalReply) error {
	p, err := g.take(reply)
	if err != nil {
		return err
	}
	p.resultCh <- delivery{}

	logger.Warn(ctx, "approval failed on malformed reply", "approval_id", reply.RequestID, "kind", p.info.Kind)
	return nil
}

// take removes and returns the open approval reply answers
func (g *Gate) take(reply *types.ApprovalReply) (*pendingApproval, error) {
	if reply == nil || reply.Sender != types.SenderPopup {
		return nil, ErrMalformed
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[reply.RequestID]
	if !ok {
		return nil, ErrNoMatch
	}
	if reply.Type != types.ResultKind(p.info.Kind) {
		return nil, ErrMalformed
	}
	if err := g.tickets.Verify(reply.Ticket, p.info.ID, p.info.Kind); err != nil {
		return nil, err
	}
	delete(g.pending, reply.RequestID)
	return p, nil
}

// Pending lists open approvals, oldest first. The result includes
// tickets and must only be served to the approval surface.
func (g *Gate) Pending() []Pending {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Pending, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Open returns the number of open approvals
func (g *Gate) Open() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gate) remove(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Gate) closed(kind, outcome string) {
	if g.observer != nil {
		g.observer.ApprovalClosed(kind, outcome)
	}
}

// launchURL builds <popup url>?auth=<url-encoded JSON context>
func (g *Gate) launchURL(p *pendingApproval) (string, error) {
	raw, err := json.Marshal(p.info)
	if err != nil {
		return "", fmt.Errorf("failed to encode launch context: %w", err)
	}

	u, err := url.Parse(g.popupURL)
	if err != nil {
		return "", fmt.Errorf("invalid popup URL: %w", err)
	}
	q := u.Query()
	q.Set("auth", string(raw))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
