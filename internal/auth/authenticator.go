// Package auth logs in to the Remeha (BDR Thermea) Azure B2C tenant without a
// browser and refreshes the resulting tokens.
//
// The provider only exposes an interactive login form, so Login replays what a
// browser would do: fetch the form, post the credentials, confirm the session
// and exchange the authorization code for tokens (Authorization Code + PKCE).
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/pkce"
)

const (
	DefaultRootURL     = "https://remehalogin.bdrthermea.net/bdrb2cprod.onmicrosoft.com"
	DefaultPolicy      = "B2C_1A_RPSignUpSignInNewRoomv3.1"
	DefaultClientID    = "6ce007c6-0628-419e-88f4-bee2e6418eec"
	DefaultRedirectURL = "com.b2c.remehaapp://login-callback"

	defaultTimeout = 15 * time.Second
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{
	"openid",
	"https://bdrb2cprod.onmicrosoft.com/iotdevice/user_impersonation",
	"offline_access",
}

// Config names the B2C tenant, policy and public client.
type Config struct {
	RootURL     string
	Policy      string
	ClientID    string
	RedirectURL string
	Scopes      []string
}

// DefaultConfig returns the Remeha Home app client settings for rootURL.
func DefaultConfig(rootURL string) Config {
	if strings.TrimSpace(rootURL) == "" {
		rootURL = DefaultRootURL
	}
	return Config{
		RootURL:     strings.TrimSuffix(strings.TrimSpace(rootURL), "/"),
		Policy:      DefaultPolicy,
		ClientID:    DefaultClientID,
		RedirectURL: DefaultRedirectURL,
		Scopes:      DefaultScopes,
	}
}

func (c Config) authorizeURL() string {
	return c.RootURL + "/oauth2/v2.0/authorize"
}

func (c Config) selfAssertedURL() string {
	return c.RootURL + "/" + c.Policy + "/SelfAsserted"
}

func (c Config) confirmURL() string {
	return c.RootURL + "/" + c.Policy + "/api/CombinedSigninAndSignup/confirmed"
}

func (c Config) tokenURL() string {
	return c.RootURL + "/oauth2/v2.0/token?p=" + c.Policy
}

// Authenticator runs login and refresh exchanges. It holds no per-attempt
// state, so one value may serve concurrent logins for different accounts.
type Authenticator struct {
	cfg        Config
	httpClient *http.Client
	pkce       *pkce.Generator
	logger     *slog.Logger
}

// New creates an Authenticator. httpClient supplies the transport and timeout
// for every attempt; nil uses a default client.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Authenticator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		cfg:        cfg,
		httpClient: httpClient,
		pkce:       pkce.NewGenerator(nil),
		logger:     logger,
	}
}

func (a *Authenticator) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.cfg.ClientID,
		RedirectURL: a.cfg.RedirectURL,
		Scopes:      a.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.cfg.authorizeURL(),
			TokenURL:  a.cfg.tokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Login runs the four login steps in order and returns the issued tokens.
// Any failing step aborts the attempt with a *StepError.
func (a *Authenticator) Login(ctx context.Context, email, password string) (model.TokenData, error) {
	session, err := a.newSession()
	if err != nil {
		return model.TokenData{}, err
	}
	logger := a.logger.With("component", "auth")

	if err := a.fetchForm(ctx, session); err != nil {
		logger.Warn("login form fetch failed", "err", err)
		return model.TokenData{}, err
	}
	if err := a.submitCredentials(ctx, session, email, password); err != nil {
		logger.Warn("login credential submission failed", "err", err)
		return model.TokenData{}, err
	}
	if err := a.confirm(ctx, session); err != nil {
		logger.Warn("login confirmation failed", "err", err)
		return model.TokenData{}, err
	}
	tokens, err := a.exchangeCode(ctx, session)
	if err != nil {
		logger.Warn("token exchange failed", "err", err)
		return model.TokenData{}, err
	}
	logger.Info("login succeeded", "expires_at", tokens.ExpiresAt)
	return tokens, nil
}

// Refresh exchanges refreshToken for a new token set.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (model.TokenData, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenData{}, stepError(StepRefreshToken, 0, ErrRefreshFailed, errors.New("refresh token is empty"))
	}
	client := tokenClient(&http.Client{Transport: a.httpClient.Transport, Timeout: a.httpClient.Timeout})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	source := a.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return model.TokenData{}, stepError(StepRefreshToken, retrieveStatus(err), ErrRefreshFailed, err)
	}
	return tokenData(token), nil
}

func retrieveStatus(err error) int {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}
	var statusErr *tokenStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

// tokenStatusError reports a token endpoint reply that was a 2xx but not 200.
type tokenStatusError struct {
	Status int
}

func (e *tokenStatusError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d", e.Status)
}

// tokenTransport only lets 200 token responses through. x/oauth2 rejects
// non-2xx replies itself but accepts any 2xx.
type tokenTransport struct {
	base http.RoundTripper
}

func (t tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		drain(resp)
		return nil, &tokenStatusError{Status: resp.StatusCode}
	}
	return resp, nil
}

// tokenClient copies client with a transport that enforces tokenTransport.
func tokenClient(client *http.Client) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	strict := *client
	strict.Transport = tokenTransport{base: base}
	return &strict
}

func tokenData(token *oauth2.Token) model.TokenData {
	scope, _ := token.Extra("scope").(string)
	return model.TokenData{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    expiresIn(token),
		ExpiresAt:    token.Expiry,
		RefreshToken: token.RefreshToken,
		Scope:        scope,
	}
}

func expiresIn(token *oauth2.Token) int64 {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	if token.Expiry.IsZero() {
		return 0
	}
	return int64(time.Until(token.Expiry).Round(time.Second) / time.Second)
}
