// Package session holds the authenticated http session every rsi api call goes
// through.
package session

import (
	"context"
	"errors"
	"net/url"
	"os"
	"sync"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/telemetry"
	"gorsi/lib/util/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("rsi/session")

const (
	report_session_load         = "session.load"
	report_session_save         = "session.save"
	report_session_token        = "session.token"
	report_session_authenticate = "session.authenticate"
	report_session_signout      = "session.signout"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateTwoFactorPending
	StateAuthenticated
	StateSignedOut
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateTwoFactorPending:
		return "two-factor-pending"
	case StateAuthenticated:
		return "authenticated"
	case StateSignedOut:
		return "signed-out"
	}
	return "unknown"
}

// Session is a cookie and token carrying http client for the site.
//
// Requests made through a Session send the session token as the `X-<name>` header
// and pick up any new token the server hands out through a cookie of the same name.
type Session struct {
	cfg     Config
	baseUrl *url.URL
	http    *resty.Client
	jar     *recordingJar
	tel     telemetry.API

	mu        sync.Mutex
	name      string
	value     string
	phase     State
	signedOut bool
}

func New(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	baseUrl, err := url.Parse(cfg.BaseUrl)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		baseUrl: baseUrl,
		jar:     newRecordingJar(),
		tel:     cfg.Telemetry,
		name:    cfg.SessionName,
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseUrl)
	client.SetCookieJar(s.jar)
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetTimeout(cfg.Timeout)
	if cfg.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	client.OnBeforeRequest(s.attachToken)
	telemetry.InstrumentResty(client, s.tel, "rsi/session/http")
	client.OnAfterResponse(s.interceptToken)
	if cfg.HttpDump != nil {
		restyutil.Dump(client, cfg.HttpDump, "X-"+cfg.SessionName)
	}
	s.http = client

	if cfg.Persist {
		s.load()
	}
	return s, nil
}

func (s *Session) attachToken(_ *resty.Client, req *resty.Request) error {
	name, value := s.Token()
	if value != "" {
		req.SetHeader("X-"+name, value)
	}
	return nil
}

func (s *Session) interceptToken(_ *resty.Client, res *resty.Response) error {
	cookies := res.Cookies()
	if len(cookies) == 0 {
		return nil
	}

	rotated := false
	s.mu.Lock()
	for _, c := range cookies {
		if c.Name != s.name {
			continue
		}
		value := c.Value
		if c.MaxAge < 0 {
			value = ""
		}
		if value == s.value {
			continue
		}
		s.tel.ReportDebug(report_session_token, "rotated", res.Request.URL)
		s.value = value
		rotated = true
		if value != "" {
			s.signedOut = false
		}
	}
	s.mu.Unlock()

	if rotated || s.jar.Dirty() {
		s.save()
	}
	return nil
}

// Token returns the session label and the current session token, which is empty
// when there is no session.
func (s *Session) Token() (name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.value
}

// State reports the local view of the session, only IsAuthenticated confirms it
// with the server.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase != StateAnonymous:
		return s.phase
	case s.value != "":
		return StateAuthenticated
	case s.signedOut:
		return StateSignedOut
	}
	return StateAnonymous
}

// BaseURL returns a copy of the base url requests are resolved against.
func (s *Session) BaseURL() *url.URL {
	u := *s.baseUrl
	return &u
}

// URL resolves a path or relative reference against the base url.
func (s *Session) URL(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return s.baseUrl.String() + ref
	}
	return s.baseUrl.ResolveReference(parsed).String()
}

func (s *Session) Telemetry() telemetry.API {
	return s.tel
}

// R starts a request bound to ctx.
func (s *Session) R(ctx context.Context) *resty.Request {
	return s.http.R().SetContext(ctx)
}

// Do executes req, a failed request or a non-2xx response is a TransportError.
func (s *Session) Do(req *resty.Request, method, path string) (*resty.Response, error) {
	res, err := req.Execute(method, path)
	if err != nil {
		return nil, &rsierr.TransportError{Method: method, Endpoint: path, Err: err}
	}
	if !res.IsSuccess() {
		return res, &rsierr.TransportError{Method: method, Endpoint: path, Status: res.StatusCode()}
	}
	return res, nil
}

func (s *Session) Get(ctx context.Context, path string) (*resty.Response, error) {
	return s.Do(s.R(ctx), resty.MethodGet, path)
}

func (s *Session) PostForm(ctx context.Context, path string, form url.Values) (*resty.Response, error) {
	return s.Do(s.R(ctx).SetFormDataFromValues(form), resty.MethodPost, path)
}

func (s *Session) PostJSON(ctx context.Context, path string, body any) (*resty.Response, error) {
	if body == nil {
		body = map[string]any{}
	}
	req := s.R(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body)
	return s.Do(req, resty.MethodPost, path)
}

// QueryAPI posts body as json to an api endpoint and decodes the response
// envelope, an envelope that does not report success is a ProtocolError.
func (s *Session) QueryAPI(ctx context.Context, path string, body any) (Envelope, error) {
	res, err := s.PostJSON(ctx, path, body)
	if err != nil {
		return Envelope{}, err
	}
	env, err := DecodeEnvelope(path, res.Body())
	if err != nil {
		return Envelope{}, err
	}
	if !env.Ok() {
		return env, rsierr.NewProtocolError(path, envelopeFailure(env), res.Body(), nil)
	}
	return env, nil
}

func envelopeFailure(env Envelope) string {
	reason := "request unsuccessful"
	if env.Code != "" {
		reason += " [" + env.Code + "]"
	}
	if env.Msg != "" {
		reason += ": " + env.Msg
	}
	return reason
}

func (s *Session) setToken(name, value string) {
	s.mu.Lock()
	if name != "" {
		s.name = name
	}
	s.value = value
	if value != "" {
		s.signedOut = false
	}
	s.mu.Unlock()
	s.save()
}

func (s *Session) setPhase(phase State) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Session) clearLocal() {
	s.mu.Lock()
	s.value = ""
	s.name = s.cfg.SessionName
	s.mu.Unlock()
	s.jar.Clear()
}

// Reset drops the session token and every cookie without contacting the server.
func (s *Session) Reset() {
	s.clearLocal()
	s.save()
}

func (s *Session) load() {
	p, err := readSessionFile(s.cfg.SessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.tel.ReportWarning(report_session_load, err, s.cfg.SessionFile)
		return
	}
	if p.cookies != "" {
		err = s.jar.Decode(p.cookies)
		if err != nil {
			s.tel.ReportWarning(report_session_load, err, s.cfg.SessionFile)
			s.jar.Clear()
			return
		}
	}

	s.mu.Lock()
	if p.name != "" {
		s.name = p.name
	}
	s.value = p.value
	s.mu.Unlock()
}

func (s *Session) save() {
	if !s.cfg.Persist {
		return
	}
	cookies, err := s.jar.Encode()
	if err != nil {
		s.tel.ReportBroken(report_session_save, err)
		return
	}
	s.mu.Lock()
	p := persisted{name: s.name, value: s.value, cookies: cookies}
	s.mu.Unlock()

	err = writeSessionFile(s.cfg.SessionFile, p)
	if err != nil {
		s.tel.ReportBroken(report_session_save, err, s.cfg.SessionFile)
	}
}
