package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/telemetry"
	"gorsi/lib/util/restyutil"
)

const (
	DefaultBaseUrl     = "https://robertsspaceindustries.com"
	DefaultSessionName = "Rsi-Token"
	DefaultSessionFile = ".gorsi_session"
	DefaultDeviceName  = "gorsi"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultTimeout     = 30 * time.Second
)

// Duration is how long a session created through a two-factor challenge stays valid.
type Duration string

const (
	DurationSession Duration = "session"
	DurationDay     Duration = "day"
	DurationWeek    Duration = "week"
	DurationMonth   Duration = "month"
	DurationYear    Duration = "year"
)

var durations = []Duration{DurationSession, DurationDay, DurationWeek, DurationMonth, DurationYear}

func (d Duration) Valid() bool {
	for _, valid := range durations {
		if d == valid {
			return true
		}
	}
	return false
}

// Endpoints are the paths (relative to the base url) of the account api.
type Endpoints struct {
	SignIn          string `json:"sign_in"`
	SignInMultiStep string `json:"sign_in_multi_step"`
	SessionCheck    string `json:"session_check"`
	SignOut         string `json:"sign_out"`
	SetAuthToken    string `json:"set_auth_token"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		SignIn:          "/api/account/signin",
		SignInMultiStep: "/api/account/signinMultiStep",
		SessionCheck:    "/api/contacts/list",
		SignOut:         "/api/account/signout",
		SetAuthToken:    "/api/account/v2/setAuthToken",
	}
}

func (e Endpoints) withDefaults() Endpoints {
	def := DefaultEndpoints()
	if e.SignIn == "" {
		e.SignIn = def.SignIn
	}
	if e.SignInMultiStep == "" {
		e.SignInMultiStep = def.SignInMultiStep
	}
	if e.SessionCheck == "" {
		e.SessionCheck = def.SessionCheck
	}
	if e.SignOut == "" {
		e.SignOut = def.SignOut
	}
	if e.SetAuthToken == "" {
		e.SetAuthToken = def.SetAuthToken
	}
	return e
}

// Config configures a Session, zero valued fields take the defaults documented on
// each field.
type Config struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// SessionName is the cookie that carries the session token, it is also sent back
	// as the `X-<SessionName>` header. Defaults to DefaultSessionName.
	SessionName string
	// Persist writes the session to SessionFile after every change and reads it on
	// construction.
	Persist bool
	// SessionFile defaults to DefaultSessionFile.
	SessionFile string
	Endpoints   Endpoints

	// DisableTwoFactor makes accounts that require a two-factor code fail to log in.
	DisableTwoFactor bool
	// TwoFactorPrompt supplies the code when the account requires one.
	TwoFactorPrompt TwoFactorPrompt
	// TwoFactorDuration defaults to DurationSession.
	TwoFactorDuration Duration
	// DeviceName is the device the two-factor session is registered under.
	DeviceName string

	UserAgent string
	// Timeout bounds every request, defaults to DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing requests, 0 disables throttling.
	RequestsPerSecond float64

	// HttpDump receives every exchange with the session token and cookies masked,
	// nil disables dumping.
	HttpDump  restyutil.Output
	Telemetry telemetry.API
}

// DefaultConfig is the configuration of a persisted session against the live site.
func DefaultConfig() Config {
	return Config{Persist: true}
}

func (c Config) withDefaults() Config {
	if c.BaseUrl == "" {
		c.BaseUrl = DefaultBaseUrl
	}
	c.BaseUrl = strings.TrimRight(c.BaseUrl, "/")
	if c.SessionName == "" {
		c.SessionName = DefaultSessionName
	}
	if c.SessionFile == "" {
		c.SessionFile = DefaultSessionFile
	}
	if c.TwoFactorDuration == "" {
		c.TwoFactorDuration = DurationSession
	}
	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	c.Endpoints = c.Endpoints.withDefaults()
	c.Telemetry = telemetry.OrDefault(c.Telemetry)
	return c
}

// Validate checks a config after defaults have been applied.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.BaseUrl)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &rsierr.ValidationError{Field: "base url", Value: c.BaseUrl, Reason: "must be http or https"}
	}
	if !c.TwoFactorDuration.Valid() {
		return &rsierr.ValidationError{
			Field:  "two-factor duration",
			Value:  string(c.TwoFactorDuration),
			Reason: fmt.Sprintf("must be one of %v", durations),
		}
	}
	for name, path := range map[string]string{
		"sign in endpoint":            c.Endpoints.SignIn,
		"sign in multi-step endpoint": c.Endpoints.SignInMultiStep,
		"session check endpoint":      c.Endpoints.SessionCheck,
		"sign out endpoint":           c.Endpoints.SignOut,
		"set auth token endpoint":     c.Endpoints.SetAuthToken,
	} {
		if !strings.HasPrefix(path, "/") {
			return &rsierr.ValidationError{Field: name, Value: path, Reason: "must start with /"}
		}
	}
	if c.RequestsPerSecond < 0 {
		return &rsierr.ValidationError{
			Field:  "requests per second",
			Value:  fmt.Sprint(c.RequestsPerSecond),
			Reason: "must not be negative",
		}
	}
	return nil
}
