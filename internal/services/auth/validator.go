package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type RevocationStore interface {
	Revoke(ctx context.Context, sid string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

// Validator authenticates bearer tokens. A session id revoked through logout
// stays rejected until every token carrying it has expired.
type Validator struct {
	jwt         *JWTManager
	revocations RevocationStore
}

func NewValidator(jwtManager *JWTManager, revocations RevocationStore) *Validator {
	return &Validator{jwt: jwtManager, revocations: revocations}
}

func (v *Validator) ValidateAccessToken(ctx context.Context, accessToken string) (AccessClaims, error) {
	claims, err := v.jwt.ParseAccessToken(accessToken)
	if err != nil {
		return AccessClaims{}, ErrUnauthorized
	}
	if v.revocations == nil {
		return claims, nil
	}

	revoked, err := v.revocations.IsRevoked(ctx, claims.SID)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return AccessClaims{}, ErrRevoked
	}
	return claims, nil
}

func (v *Validator) Revoke(ctx context.Context, sid string) error {
	if strings.TrimSpace(sid) == "" {
		return ErrInvalidInput
	}
	if v.revocations == nil {
		return nil
	}
	if err := v.revocations.Revoke(ctx, sid, v.jwt.AccessTTL()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
