package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

// Freshness selects how a stored token is judged stale.
type Freshness string

const (
	// FreshnessClaim reads the exp claim of the access token.
	FreshnessClaim Freshness = "claim"
	// FreshnessExpiry compares the stored issue time + expires_in.
	FreshnessExpiry Freshness = "expiry"
)

// ParseFreshness maps a config value to a policy, defaulting to claim.
func ParseFreshness(raw string) Freshness {
	if Freshness(strings.ToLower(strings.TrimSpace(raw))) == FreshnessExpiry {
		return FreshnessExpiry
	}
	return FreshnessClaim
}

// NeedsRefresh reports whether tokens must be refreshed before the next call.
func (f Freshness) NeedsRefresh(tokens model.TokenData, now time.Time) bool {
	if f == FreshnessExpiry {
		return tokens.ExpiresAt.IsZero() || tokens.ExpiresAt.Before(now)
	}
	return AccessTokenExpired(tokens.AccessToken, now)
}

// AccessTokenExpiry reads the exp claim of a JWT access token.
//
// Advisory only, not a trust boundary: the signature is not verified. The
// resource server is the only verifier; this is used to decide when to refresh.
func AccessTokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("decode access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// AccessTokenExpired is true when exp is strictly before now, or when the
// token cannot be decoded at all.
func AccessTokenExpired(accessToken string, now time.Time) bool {
	exp, err := AccessTokenExpiry(accessToken)
	if err != nil {
		return true
	}
	return exp.Before(now)
}
