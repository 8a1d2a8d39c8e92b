package session

import (
	"context"
	"fmt"
	"net/http"

	"gorsi/lib/rsi/rsierr"

	"go.opentelemetry.io/otel/codes"
)

// TwoFactorPrompt returns the two-factor code for a login that requires one.
type TwoFactorPrompt func(ctx context.Context) (string, error)

// ValidateTwoFactorCode checks that code is exactly 6 ascii digits.
func ValidateTwoFactorCode(code string) error {
	if len(code) != 6 {
		return &rsierr.ValidationError{Field: "two-factor code", Value: code, Reason: "must be 6 digits"}
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return &rsierr.ValidationError{Field: "two-factor code", Value: code, Reason: "must only contain digits"}
		}
	}
	return nil
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember string `json:"remember"`
}

type multiStepRequest struct {
	Code       string `json:"code"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Duration   string `json:"duration"`
}

type sessionData struct {
	SessionName string `json:"session_name"`
	SessionId   string `json:"session_id"`
}

// IsAuthenticated asks the server whether the current session is signed in.
func (s *Session) IsAuthenticated(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "session:IsAuthenticated")
	defer span.End()

	endpoint := s.cfg.Endpoints.SessionCheck
	res, err := s.PostJSON(ctx, endpoint, nil)
	if res != nil && (res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden) {
		return false, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	env, err := DecodeEnvelope(endpoint, res.Body())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return res.StatusCode() == http.StatusOK && env.Ok(), nil
}

// Authenticate signs in with the given credentials.
//
// Unless force is set, nothing happens if the current session is already signed
// in. Any failure leaves the session anonymous.
func (s *Session) Authenticate(ctx context.Context, username, password string, force bool) (err error) {
	ctx, span := tracer.Start(ctx, "session:Authenticate")
	defer span.End()

	if username == "" {
		return &rsierr.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return &rsierr.ValidationError{Field: "password", Reason: "must not be empty"}
	}

	if !force {
		ok, err := s.IsAuthenticated(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	s.clearLocal()
	s.setPhase(StateAuthenticating)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportWarning(report_session_authenticate, err)
			s.clearLocal()
		}
		s.setPhase(StateAnonymous)
		s.save()
	}()

	endpoint := s.cfg.Endpoints.SignIn
	res, err := s.PostJSON(ctx, endpoint, signInRequest{
		Username: username,
		Password: password,
		Remember: "off",
	})
	if err != nil {
		return &rsierr.AuthenticationError{Err: err}
	}
	env, err := DecodeEnvelope(endpoint, res.Body())
	if err != nil {
		return &rsierr.AuthenticationError{Err: err}
	}

	switch {
	case env.Ok():
		return s.acceptSession(env)
	case env.Code == CodeMultiStepRequired:
		return s.twoFactor(ctx, env)
	}
	return &rsierr.AuthenticationError{Code: env.Code, Diagnostic: env.Msg}
}

func (s *Session) twoFactor(ctx context.Context, challenge Envelope) error {
	if s.cfg.DisableTwoFactor {
		return &rsierr.AuthenticationError{
			Code:       challenge.Code,
			Diagnostic: "account requires a two-factor code but two-factor login is disabled",
		}
	}
	if s.cfg.TwoFactorPrompt == nil {
		return &rsierr.AuthenticationError{
			Code:       challenge.Code,
			Diagnostic: "account requires a two-factor code but no prompt is configured",
		}
	}

	var intermediate sessionData
	err := challenge.DecodeData(&intermediate)
	if err == nil && intermediate.SessionId != "" {
		s.setToken(intermediate.SessionName, intermediate.SessionId)
	}
	s.setPhase(StateTwoFactorPending)

	code, err := s.cfg.TwoFactorPrompt(ctx)
	if err != nil {
		return &rsierr.AuthenticationError{
			Code:       challenge.Code,
			Diagnostic: "read two-factor code",
			Err:        err,
		}
	}
	err = ValidateTwoFactorCode(code)
	if err != nil {
		return err
	}

	endpoint := s.cfg.Endpoints.SignInMultiStep
	res, err := s.PostJSON(ctx, endpoint, multiStepRequest{
		Code:       code,
		DeviceName: s.cfg.DeviceName,
		DeviceType: "computer",
		Duration:   string(s.cfg.TwoFactorDuration),
	})
	if err != nil {
		return &rsierr.AuthenticationError{Err: err}
	}
	env, err := DecodeEnvelope(endpoint, res.Body())
	if err != nil {
		return &rsierr.AuthenticationError{Err: err}
	}
	if !env.Ok() {
		return &rsierr.AuthenticationError{Code: env.Code, Diagnostic: env.Msg}
	}
	return s.acceptSession(env)
}

func (s *Session) acceptSession(env Envelope) error {
	var data sessionData
	err := env.DecodeData(&data)
	if err != nil {
		return &rsierr.AuthenticationError{Diagnostic: "decode session", Err: err}
	}
	if data.SessionId == "" {
		return &rsierr.AuthenticationError{Diagnostic: "response carried no session id"}
	}
	s.setToken(data.SessionName, data.SessionId)
	return nil
}

// SignOut signs the session out on the server. The local session and the session
// file are cleared even when the request fails.
func (s *Session) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:SignOut")
	defer span.End()

	endpoint := s.cfg.Endpoints.SignOut
	res, err := s.PostJSON(ctx, endpoint, nil)

	s.clearLocal()
	s.mu.Lock()
	s.signedOut = true
	s.mu.Unlock()
	if s.cfg.Persist {
		rmErr := removeSessionFile(s.cfg.SessionFile)
		if rmErr != nil {
			s.tel.ReportBroken(report_session_signout, rmErr, s.cfg.SessionFile)
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	env, err := DecodeEnvelope(endpoint, res.Body())
	if err != nil {
		return err
	}
	if !env.Ok() {
		return rsierr.NewProtocolError(endpoint, envelopeFailure(env), res.Body(), nil)
	}
	return nil
}

// UpdateSessionTokens primes the auth token on the server, then posts to each of
// the extra endpoints (ex. the store's context token endpoint).
func (s *Session) UpdateSessionTokens(ctx context.Context, extra ...string) error {
	endpoints := append([]string{s.cfg.Endpoints.SetAuthToken}, extra...)
	for _, endpoint := range endpoints {
		_, err := s.PostJSON(ctx, endpoint, nil)
		if err != nil {
			return fmt.Errorf("update session tokens: %w", err)
		}
	}
	return nil
}
