package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidTicket is returned when a reply's ticket does not verify
var ErrInvalidTicket = errors.New("invalid approval ticket")

const ticketIssuer = "dapp-broker"

// TicketIssuer signs the short-lived tickets handed to the approval
// surface. A reply must echo the ticket of the request it answers.
type TicketIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTicketIssuer creates a TicketIssuer using HS256 with secret
func NewTicketIssuer(secret []byte) (*TicketIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("ticket secret must be at least 32 bytes")
	}
	return &TicketIssuer{secret: secret, now: time.Now}, nil
}

// Issue returns a ticket for request id of kind, valid for ttl
func (t *TicketIssuer) Issue(id, kind string, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    ticketIssuer,
		Subject:   kind,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}
	return signed, exp, nil
}

// Verify checks that ticket was issued by t for request id of kind and
// has not expired
func (t *TicketIssuer) Verify(ticket, id, kind string) error {
	keyFunc := func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(ticket, claims, keyFunc,
		jwt.WithIssuer(ticketIssuer),
		jwt.WithSubject(kind),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !tok.Valid {
		return ErrInvalidTicket
	}
	if claims.ID != id {
		return ErrInvalidTicket
	}
	return nil
}
