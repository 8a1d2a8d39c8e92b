package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	mu            sync.Mutex
	twoFactor     bool
	signOutStatus int
	posts         map[string]int
	valid         map[string]bool
	lastMultiStep multiStepRequest
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		posts: map[string]int{},
		valid: map[string]bool{},
	}
}

func (f *fakeAccount) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[path]
}

func (f *fakeAccount) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, count := range f.posts {
		total += count
	}
	return total
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (f *fakeAccount) issue(w http.ResponseWriter, token string) {
	f.valid[token] = true
	http.SetCookie(w, &http.Cookie{Name: "Rsi-Token", Value: token, Path: "/"})
	writeJSON(w, map[string]any{
		"success": 1,
		"data": map[string]any{
			"session_name": "Rsi-Token",
			"session_id":   token,
		},
	})
}

func (f *fakeAccount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodPost {
		f.posts[r.URL.Path]++
	}

	switch r.URL.Path {
	case "/api/account/signin":
		var body signInRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "hunter2" || body.Remember != "off" {
			writeJSON(w, map[string]any{"success": 0, "code": "ErrInvalidPassword", "msg": "Invalid password"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "_rsi_device", Value: "device-1", Path: "/"})
		if f.twoFactor {
			writeJSON(w, map[string]any{
				"success": 0,
				"code":    CodeMultiStepRequired,
				"msg":     "Multi-step authentication required",
				"data": map[string]any{
					"session_name": "Rsi-Token",
					"session_id":   "pending",
				},
			})
			return
		}
		f.issue(w, "token-1")
	case "/api/account/signinMultiStep":
		json.NewDecoder(r.Body).Decode(&f.lastMultiStep)
		if f.lastMultiStep.Code != "123456" {
			writeJSON(w, map[string]any{"success": 0, "code": "ErrInvalidChallengeCode", "msg": "Invalid code"})
			return
		}
		f.issue(w, "token-2fa")
	case "/api/contacts/list":
		if f.valid[r.Header.Get("X-Rsi-Token")] {
			writeJSON(w, map[string]any{"success": 1, "data": map[string]any{}})
			return
		}
		writeJSON(w, map[string]any{"success": 0, "code": "ErrNotAuthenticated"})
	case "/api/account/signout":
		if f.signOutStatus != 0 {
			w.WriteHeader(f.signOutStatus)
			return
		}
		writeJSON(w, map[string]any{"success": 1})
	case "/assign":
		f.valid["token-assigned"] = true
		http.SetCookie(w, &http.Cookie{Name: "Rsi-Token", Value: "token-assigned", Path: "/"})
		w.WriteHeader(http.StatusOK)
	case "/rotate":
		f.valid["token-rotated"] = true
		http.SetCookie(w, &http.Cookie{Name: "Rsi-Token", Value: "token-rotated", Path: "/"})
		w.WriteHeader(http.StatusOK)
	case "/echo":
		device, _ := r.Cookie("_rsi_device")
		deviceValue := ""
		if device != nil {
			deviceValue = device.Value
		}
		fmt.Fprintf(w, "%s;%s", r.Header.Get("X-Rsi-Token"), deviceValue)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setup(t testing.TB, account *fakeAccount, modify func(cfg *Config)) (*Session, string) {
	srv := httptest.NewServer(account)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseUrl:     srv.URL,
		Persist:     true,
		SessionFile: filepath.Join(t.TempDir(), "session.ini"),
		Telemetry:   telemetry.NewRecorder(),
	}
	if modify != nil {
		modify(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s, cfg.BaseUrl
}

func reopen(t testing.TB, from *Session) *Session {
	s, err := New(from.cfg)
	require.NoError(t, err)
	return s
}

func echo(t testing.TB, s *Session) string {
	res, err := s.Get(context.Background(), "/echo")
	require.NoError(t, err)
	return res.String()
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	first, _ := setup(t, account, nil)

	require.Equal(t, StateAnonymous, first.State())
	require.NoError(t, first.Authenticate(ctx, "citizen", "hunter2", true))
	require.Equal(t, StateAuthenticated, first.State())
	require.Equal(t, "token-1;device-1", echo(t, first))

	second := reopen(t, first)
	require.Equal(t, StateAuthenticated, second.State())
	name, value := second.Token()
	require.Equal(t, "Rsi-Token", name)
	require.Equal(t, "token-1", value)
	require.Equal(t, "token-1;device-1", echo(t, second))

	ok, err := second.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTwoFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("valid code", func(t *testing.T) {
		account := newFakeAccount()
		account.twoFactor = true
		s, _ := setup(t, account, func(cfg *Config) {
			cfg.TwoFactorDuration = DurationWeek
			cfg.TwoFactorPrompt = func(context.Context) (string, error) {
				return "123456", nil
			}
		})

		require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))
		require.Equal(t, 2, account.total())
		require.Equal(t, 1, account.count("/api/account/signin"))
		require.Equal(t, 1, account.count("/api/account/signinMultiStep"))
		require.Equal(t, multiStepRequest{
			Code:       "123456",
			DeviceName: DefaultDeviceName,
			DeviceType: "computer",
			Duration:   "week",
		}, account.lastMultiStep)
		require.Equal(t, StateAuthenticated, s.State())
		_, value := s.Token()
		require.Equal(t, "token-2fa", value)
	})

	t.Run("malformed code", func(t *testing.T) {
		account := newFakeAccount()
		account.twoFactor = true
		s, _ := setup(t, account, func(cfg *Config) {
			cfg.TwoFactorPrompt = func(context.Context) (string, error) {
				return "12a456", nil
			}
		})

		err := s.Authenticate(ctx, "citizen", "hunter2", true)
		var validationErr *rsierr.ValidationError
		require.ErrorAs(t, err, &validationErr)
		require.Equal(t, 1, account.total())
		require.Equal(t, StateAnonymous, s.State())
	})

	t.Run("prompt sees pending state", func(t *testing.T) {
		account := newFakeAccount()
		account.twoFactor = true
		var s *Session
		var seen State
		s, _ = setup(t, account, func(cfg *Config) {
			cfg.TwoFactorPrompt = func(context.Context) (string, error) {
				seen = s.State()
				return "123456", nil
			}
		})
		require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))
		require.Equal(t, StateTwoFactorPending, seen)
	})

	t.Run("disabled", func(t *testing.T) {
		account := newFakeAccount()
		account.twoFactor = true
		s, _ := setup(t, account, func(cfg *Config) {
			cfg.DisableTwoFactor = true
		})

		err := s.Authenticate(ctx, "citizen", "hunter2", true)
		var authErr *rsierr.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, CodeMultiStepRequired, authErr.Code)
		require.Equal(t, StateAnonymous, s.State())
	})
}

func TestAuthenticateIdempotent(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)

	require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))
	before := account.total()

	require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", false))
	require.Equal(t, before+1, account.total())
	require.Equal(t, 1, account.count("/api/contacts/list"))
	require.Equal(t, 1, account.count("/api/account/signin"))
	require.Equal(t, StateAuthenticated, s.State())
}

func TestAuthenticateFailure(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)

	err := s.Authenticate(ctx, "citizen", "wrong", true)
	var authErr *rsierr.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "ErrInvalidPassword", authErr.Code)
	require.Equal(t, "Invalid password", authErr.Diagnostic)
	require.Equal(t, StateAnonymous, s.State())

	recorder := s.cfg.Telemetry.(*telemetry.Recorder)
	require.Len(t, recorder.Reports("warning", report_session_authenticate), 1)

	err = s.Authenticate(ctx, "", "hunter2", true)
	var validationErr *rsierr.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestTokenRotation(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)
	require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))

	_, err := s.Get(ctx, "/rotate")
	require.NoError(t, err)
	_, value := s.Token()
	require.Equal(t, "token-rotated", value)
	require.Equal(t, "token-rotated;device-1", echo(t, s))

	persisted, err := readSessionFile(s.cfg.SessionFile)
	require.NoError(t, err)
	require.Equal(t, "token-rotated", persisted.value)
}

func TestTokenCookieAuthenticatesAnonymousSession(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)
	require.Equal(t, StateAnonymous, s.State())

	_, err := s.Get(ctx, "/assign")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, s.State())
	_, value := s.Token()
	require.Equal(t, "token-assigned", value)

	persisted, err := readSessionFile(s.cfg.SessionFile)
	require.NoError(t, err)
	require.Equal(t, "Rsi-Token", persisted.name)
	require.Equal(t, "token-assigned", persisted.value)

	ok, err := reopen(t, s).IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnchangedCookiesAreNotSaved(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)

	_, err := s.Get(ctx, "/rotate")
	require.NoError(t, err)
	_, err = os.Stat(s.cfg.SessionFile)
	require.NoError(t, err)

	require.NoError(t, os.Remove(s.cfg.SessionFile))
	for i := 0; i < 3; i++ {
		_, err = s.Get(ctx, "/rotate")
		require.NoError(t, err)
	}
	_, err = os.Stat(s.cfg.SessionFile)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		account := newFakeAccount()
		s, _ := setup(t, account, nil)
		require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))

		require.NoError(t, s.SignOut(ctx))
		require.Equal(t, StateSignedOut, s.State())
		_, err := os.Stat(s.cfg.SessionFile)
		require.True(t, errors.Is(err, os.ErrNotExist))
		require.Equal(t, ";", echo(t, s))
	})

	t.Run("server failure still clears", func(t *testing.T) {
		account := newFakeAccount()
		account.signOutStatus = http.StatusInternalServerError
		s, _ := setup(t, account, nil)
		require.NoError(t, s.Authenticate(ctx, "citizen", "hunter2", true))

		err := s.SignOut(ctx)
		var transportErr *rsierr.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, http.StatusInternalServerError, transportErr.Status)
		require.Equal(t, "/api/account/signout", transportErr.Endpoint)

		require.Equal(t, StateSignedOut, s.State())
		_, value := s.Token()
		require.Empty(t, value)
		_, err = os.Stat(s.cfg.SessionFile)
		require.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestCorruptSessionFile(t *testing.T) {
	account := newFakeAccount()
	s, _ := setup(t, account, nil)

	for _, contents := range []string{
		"this is not an ini file [[[",
		"[OTHER]\nsession_id = abc\n",
		"[RSI]\nsession_name = Rsi-Token\nsession_id = abc\ncookies = %%%not-base64\n",
	} {
		require.NoError(t, os.WriteFile(s.cfg.SessionFile, []byte(contents), 0600))
		reopened := reopen(t, s)
		require.Equal(t, StateAnonymous, reopened.State(), contents)
		_, value := reopened.Token()
		require.Empty(t, value)
	}
}

func TestQueryAPI(t *testing.T) {
	ctx := context.Background()
	account := newFakeAccount()
	s, _ := setup(t, account, nil)

	_, err := s.QueryAPI(ctx, "/api/contacts/list", nil)
	var protocolErr *rsierr.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	require.Contains(t, protocolErr.Reason, "ErrNotAuthenticated")
	require.Contains(t, protocolErr.Payload, `"success":0`)

	_, err = s.QueryAPI(ctx, "/missing", nil)
	var transportErr *rsierr.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusNotFound, transportErr.Status)
}

func TestValidateTwoFactorCode(t *testing.T) {
	for _, valid := range []string{"123456", "000000"} {
		require.NoError(t, ValidateTwoFactorCode(valid), valid)
	}
	for _, invalid := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		var validationErr *rsierr.ValidationError
		require.ErrorAs(t, ValidateTwoFactorCode(invalid), &validationErr, invalid)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{TwoFactorDuration: "fortnight"}.withDefaults()
	var validationErr *rsierr.ValidationError
	require.ErrorAs(t, cfg.Validate(), &validationErr)
	require.Equal(t, "two-factor duration", validationErr.Field)

	cfg = Config{BaseUrl: "ftp://example.com"}.withDefaults()
	require.ErrorAs(t, cfg.Validate(), &validationErr)

	cfg = Config{}.withDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultEndpoints(), cfg.Endpoints)
}
