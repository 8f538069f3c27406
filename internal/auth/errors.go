package auth

import (
	"errors"
	"fmt"
)

var (
	ErrFormFetchFailed        = errors.New("login form fetch failed")
	ErrRequestIDMissing       = errors.New("login form response has no request id")
	ErrCSRFMissing            = errors.New("login form response has no csrf token")
	ErrCredentialSubmitFailed = errors.New("credential submission failed")
	ErrRedirectMissing        = errors.New("login confirmation did not redirect")
	ErrAuthCodeMissing        = errors.New("redirect has no authorization code")
	ErrTokenExchangeFailed    = errors.New("token exchange failed")
	ErrRefreshFailed          = errors.New("token refresh failed")
	// ErrNoExpiry means an access token carries no readable exp claim.
	ErrNoExpiry = errors.New("access token has no expiry")
)

// Login and refresh step names reported in StepError.
const (
	StepFormFetch    = "form_fetch"
	StepSubmit       = "credential_submit"
	StepConfirm      = "confirm"
	StepExchange     = "token_exchange"
	StepRefreshToken = "refresh"
)

// StepError reports which login step failed. Kind is one of the package
// sentinels; Err is the underlying cause when there is one.
type StepError struct {
	Step   string
	Status int
	Kind   error
	Err    error
}

func (e *StepError) Error() string {
	if e == nil {
		return "login step failed"
	}
	msg := fmt.Sprintf("%s: %v", e.Step, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func stepError(step string, status int, kind, cause error) error {
	return &StepError{Step: step, Status: status, Kind: kind, Err: cause}
}
