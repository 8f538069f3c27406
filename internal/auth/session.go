package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/pkce"
)

const (
	requestIDHeader = "X-Request-Id"
	csrfCookieName  = "x-ms-cpim-csrf"
	csrfHeader      = "X-Csrf-Token"
	maxBodyBytes    = 64 << 10
)

// Session is the state accumulated across the steps of one login attempt.
// Each step reads what the previous ones stored; a Session is never reused.
type Session struct {
	Codes           pkce.Codes
	RequestID       string
	CSRFToken       string
	StateProperties string
	AuthCode        string

	client *http.Client
}

func (a *Authenticator) newSession() (*Session, error) {
	codes, err := a.pkce.New()
	if err != nil {
		return nil, fmt.Errorf("generate pkce codes: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{
		Codes: codes,
		client: &http.Client{
			Transport: a.httpClient.Transport,
			Timeout:   a.httpClient.Timeout,
			Jar:       jar,
		},
	}, nil
}

// noRedirect shares the session cookie jar but returns 3xx responses as-is.
func (s *Session) noRedirect() *http.Client {
	client := *s.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &client
}

// StateProperties encodes the provider request id the way the B2C login page
// does: base64url of {"TID":"<id>"} without padding.
func StateProperties(requestID string) string {
	raw, _ := json.Marshal(struct {
		TID string `json:"TID"`
	}{TID: requestID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func (a *Authenticator) fetchForm(ctx context.Context, s *Session) error {
	authURL := a.oauthConfig().AuthCodeURL(
		s.Codes.State,
		oauth2.SetAuthURLParam("code_challenge", s.Codes.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("p", a.cfg.Policy),
		oauth2.SetAuthURLParam("brand", "remeha"),
		oauth2.SetAuthURLParam("lang", "en"),
		oauth2.SetAuthURLParam("nonce", "defaultNonce"),
		oauth2.SetAuthURLParam("prompt", "login"),
		oauth2.SetAuthURLParam("signUp", "False"),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return stepError(StepFormFetch, 0, ErrFormFetchFailed, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return stepError(StepFormFetch, 0, ErrFormFetchFailed, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return stepError(StepFormFetch, resp.StatusCode, ErrFormFetchFailed, nil)
	}
	requestID := strings.TrimSpace(resp.Header.Get(requestIDHeader))
	if requestID == "" {
		return stepError(StepFormFetch, resp.StatusCode, ErrRequestIDMissing, nil)
	}
	csrf := ""
	for _, cookie := range resp.Cookies() {
		if cookie.Name == csrfCookieName {
			csrf = strings.TrimSpace(cookie.Value)
			break
		}
	}
	if csrf == "" {
		return stepError(StepFormFetch, resp.StatusCode, ErrCSRFMissing, nil)
	}

	s.RequestID = requestID
	s.CSRFToken = csrf
	s.StateProperties = StateProperties(requestID)
	return nil
}

func (a *Authenticator) submitCredentials(ctx context.Context, s *Session, email, password string) error {
	query := url.Values{
		"tx": {"StateProperties=" + s.StateProperties},
		"p":  {a.cfg.Policy},
	}
	form := url.Values{
		"request_type": {"RESPONSE"},
		"signInName":   {email},
		"password":     {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.selfAssertedURL()+"?"+query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return stepError(StepSubmit, 0, ErrCredentialSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(csrfHeader, s.CSRFToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return stepError(StepSubmit, 0, ErrCredentialSubmitFailed, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return stepError(StepSubmit, resp.StatusCode, ErrCredentialSubmitFailed, nil)
	}
	// B2C answers wrong credentials with HTTP 200 and a JSON status field.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if status := gjson.GetBytes(body, "status"); status.Exists() && status.String() != "200" {
		message := gjson.GetBytes(body, "message").String()
		if message == "" {
			message = "provider status " + status.String()
		}
		return stepError(StepSubmit, resp.StatusCode, ErrCredentialSubmitFailed, errors.New(message))
	}
	return nil
}

func (a *Authenticator) confirm(ctx context.Context, s *Session) error {
	query := url.Values{
		"rememberMe": {"false"},
		"csrf_token": {s.CSRFToken},
		"tx":         {"StateProperties=" + s.StateProperties},
		"p":          {a.cfg.Policy},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.confirmURL()+"?"+query.Encode(), nil)
	if err != nil {
		return stepError(StepConfirm, 0, ErrRedirectMissing, err)
	}
	req.Header.Set(csrfHeader, s.CSRFToken)

	resp, err := s.noRedirect().Do(req)
	if err != nil {
		return stepError(StepConfirm, 0, ErrRedirectMissing, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusFound {
		return stepError(StepConfirm, resp.StatusCode, ErrRedirectMissing, nil)
	}
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return stepError(StepConfirm, resp.StatusCode, ErrRedirectMissing, errors.New("empty location header"))
	}
	redirect, err := url.Parse(location)
	if err != nil {
		return stepError(StepConfirm, resp.StatusCode, ErrAuthCodeMissing, err)
	}
	code := redirect.Query().Get("code")
	if code == "" {
		return stepError(StepConfirm, resp.StatusCode, ErrAuthCodeMissing, nil)
	}
	s.AuthCode = code
	return nil
}

func (a *Authenticator) exchangeCode(ctx context.Context, s *Session) (model.TokenData, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient(s.client))
	token, err := a.oauthConfig().Exchange(ctx, s.AuthCode, oauth2.VerifierOption(s.Codes.CodeVerifier))
	if err != nil {
		return model.TokenData{}, stepError(StepExchange, retrieveStatus(err), ErrTokenExchangeFailed, err)
	}
	return tokenData(token), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
