// Package approval mints and validates operator approval tokens. Tokens
// are HMAC-signed JWTs binding a plan id, its policy tier, and the
// approving operator; REFACTOR and ARCHIVE plans apply only with a valid
// token for exactly that plan.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// DefaultTTL bounds how long a minted approval stays valid.
const DefaultTTL = time.Hour

// ErrNoSecret reports an attempt to use approvals without a configured
// signing secret.
var ErrNoSecret = errors.New("approval: signing secret not configured")

// Claims is the token payload.
type Claims struct {
	PlanID   string `json:"plan_id"`
	Tier     string `json:"tier"`
	Approver string `json:"approver"`
	jwt.RegisteredClaims
}

// Minter signs and validates approval tokens with a shared HMAC secret.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

// NewMinter builds a minter. The secret must be non-empty.
func NewMinter(secret string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{secret: []byte(secret), ttl: ttl}, nil
}

// Mint issues a token approving one plan at one tier.
func (m *Minter) Mint(planID string, tier contracts.PolicyTier, approver string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		PlanID:   planID,
		Tier:     string(tier),
		Approver: approver,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "remedy",
			Subject:   approver,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("approval: sign token: %w", err)
	}
	return token, nil
}

// Validate checks signature, expiry, and the plan binding. Its signature
// matches the pipeline's approval hook.
func (m *Minter) Validate(token, planID string) error {
	claims, err := m.Parse(token)
	if err != nil {
		return err
	}
	if claims.PlanID != planID {
		return fmt.Errorf("approval: token approves plan %q, not %q", claims.PlanID, planID)
	}
	return nil
}

// Parse verifies the token and returns its claims.
func (m *Minter) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("approval: parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("approval: invalid token")
	}
	return claims, nil
}
