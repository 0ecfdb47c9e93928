package vault

import (
	"context"
	"sync"
	"time"

	"github.com/better-wallet/dapp-broker/internal/logger"
)

// DefaultIdleTimeout locks a session that has not been used for this long
const DefaultIdleTimeout = 15 * time.Minute

// Session holds the keyfile passphrase between signing operations. It
// locks itself after the idle timeout; Lock clears it immediately.
type Session struct {
	mu       sync.Mutex
	key      string
	unlocked bool
	lastUsed time.Time
	idle     time.Duration
	now      func() time.Time
}

// NewSession creates a locked session; idle <= 0 selects DefaultIdleTimeout
func NewSession(idle time.Duration) *Session {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Session{idle: idle, now: time.Now}
}

// SetClock overrides the time source (used in tests)
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Unlock stores key and starts the idle timer
func (s *Session) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.unlocked = true
	s.lastUsed = s.now()
}

// Lock forgets the key
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

// Key returns the key and refreshes the idle timer. ok is false when the
// session is locked or has idled out.
func (s *Session) Key() (key string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.activeLocked() {
		return "", false
	}
	s.lastUsed = s.now()
	return s.key, true
}

// Unlocked reports whether a key is held, without refreshing the timer
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// Run locks the session once it idles out, until ctx is done
func (s *Session) Run(ctx context.Context) error {
	interval := s.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Lock()
			return nil
		case <-ticker.C:
			if s.sweep() {
				logger.Info(ctx, "vault session locked after inactivity")
			}
		}
	}
}

// sweep locks an idle session and reports whether it did
func (s *Session) sweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unlocked && s.now().Sub(s.lastUsed) >= s.idle {
		s.lockLocked()
		return true
	}
	return false
}

func (s *Session) activeLocked() bool {
	if !s.unlocked {
		return false
	}
	if s.now().Sub(s.lastUsed) >= s.idle {
		s.lockLocked()
		return false
	}
	return true
}

func (s *Session) lockLocked() {
	s.key = ""
	s.unlocked = false
}
