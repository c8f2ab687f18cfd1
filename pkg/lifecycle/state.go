package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidState is returned when an OAuth state token fails verification.
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims is what an OAuth state token carries, so the callback can be
// routed back to a provider without a server-side session.
type StateClaims struct {
	ProviderID string `json:"pid"`
	Nonce      string `json:"nonce"`
	Origin     string `json:"origin,omitempty"`
	UserID     string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies HS256-signed state tokens.
//
// Thread safety:
// Immutable after NewStateSigner; safe for concurrent use.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner creates a signer. ttl defaults to 15 minutes.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("oauth state secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign fills the nonce and timestamps of claims and returns the token.
func (s *StateSigner) Sign(claims StateClaims) (string, error) {
	if claims.ProviderID == "" {
		return "", fmt.Errorf("state requires a provider id")
	}
	if claims.Nonce == "" {
		claims.Nonce = uuid.NewString()
	}

	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return token, nil
}

// Parse verifies the signature and expiry of token.
//
// Returns:
//   - *StateClaims: Claims carried by a valid token
//   - error: ErrInvalidState for a bad signature, wrong algorithm, expired
//     token or missing provider id
func (s *StateSigner) Parse(token string) (*StateClaims, error) {
	claims := &StateClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !parsed.Valid || claims.ProviderID == "" {
		return nil, ErrInvalidState
	}
	return claims, nil
}
