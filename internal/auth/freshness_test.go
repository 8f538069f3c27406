package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

func testJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".c2lnbmF0dXJl"
}

func TestAccessTokenExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "exp in the past", token: testJWT(t, map[string]any{"exp": now.Add(-time.Minute).Unix()}), want: true},
		{name: "exp in the future", token: testJWT(t, map[string]any{"exp": now.Add(time.Minute).Unix()}), want: false},
		{name: "exp equal to now is not past", token: testJWT(t, map[string]any{"exp": now.Unix()}), want: false},
		{name: "missing exp", token: testJWT(t, map[string]any{"sub": "user"}), want: true},
		{name: "not a jwt", token: "opaque-token", want: true},
		{name: "garbage payload", token: "eyJhbGciOiJSUzI1NiJ9.!!!.sig", want: true},
		{name: "empty", token: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccessTokenExpired(tt.token, now); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAccessTokenExpiryReadsClaim(t *testing.T) {
	exp := time.Unix(1_800_000_000, 0)
	got, err := AccessTokenExpiry(testJWT(t, map[string]any{"exp": exp.Unix()}))
	if err != nil {
		t.Fatalf("expiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %s, got %s", exp, got)
	}
}

func TestFreshnessPolicies(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := model.TokenData{
		AccessToken: testJWT(t, map[string]any{"exp": now.Add(time.Hour).Unix()}),
		ExpiresAt:   now.Add(-time.Minute),
	}

	if FreshnessClaim.NeedsRefresh(fresh, now) {
		t.Fatalf("claim policy should trust the future exp claim")
	}
	if !FreshnessExpiry.NeedsRefresh(fresh, now) {
		t.Fatalf("expiry policy should use the stored expiry")
	}
	if !FreshnessExpiry.NeedsRefresh(model.TokenData{}, now) {
		t.Fatalf("unknown expiry must be treated as expired")
	}
	if ParseFreshness("EXPIRY") != FreshnessExpiry || ParseFreshness("") != FreshnessClaim {
		t.Fatalf("unexpected freshness parsing")
	}
}
