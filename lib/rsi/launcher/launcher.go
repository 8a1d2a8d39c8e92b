// Package launcher queries the api used by the game launcher: entitlement claims,
// the game library, news, patch notes and release info.
package launcher

import (
	"context"
	"encoding/json"
	"time"

	"gorsi/lib/assert"
	"gorsi/lib/cache"
	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rsi/launcher")

const (
	DefaultGameID    = "SC"
	DefaultChannelID = "LIVE"
	DefaultCacheTTL  = 300 * time.Second
)

const (
	report_launcher_claims  = "launcher.claims"
	report_launcher_library = "launcher.library"
	report_launcher_content = "launcher.content"
)

type Endpoints struct {
	Claims     string
	Library    string
	Release    string
	News       string
	PatchNotes string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Claims:     "/api/launcher/v3/games/claims",
		Library:    "/api/launcher/v3/games/library",
		Release:    "/api/launcher/v3/games/release",
		News:       "/api/launcher/v3/content/news",
		PatchNotes: "/api/launcher/v3/content/patchNotes",
	}
}

type Options struct {
	Endpoints Endpoints
	CacheTTL  time.Duration
	Telemetry telemetry.API
}

// Claims is the opaque entitlement token of the signed in account.
type Claims = json.RawMessage

type Launcher struct {
	sess      *session.Session
	endpoints Endpoints
	tel       telemetry.API
	claims    *cache.TTL[string, Claims]
	library   *cache.TTL[string, json.RawMessage]
}

func New(sess *session.Session, opts Options) *Launcher {
	assert.NotNil(sess)
	defaults := DefaultEndpoints()
	e := &opts.Endpoints
	for _, pair := range []struct {
		field *string
		value string
	}{
		{&e.Claims, defaults.Claims},
		{&e.Library, defaults.Library},
		{&e.Release, defaults.Release},
		{&e.News, defaults.News},
		{&e.PatchNotes, defaults.PatchNotes},
	} {
		if *pair.field == "" {
			*pair.field = pair.value
		}
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Telemetry == nil {
		opts.Telemetry = sess.Telemetry()
	}

	return &Launcher{
		sess:      sess,
		endpoints: opts.Endpoints,
		tel:       opts.Telemetry,
		claims:    cache.NewTTL[string, Claims](1, opts.CacheTTL),
		library:   cache.NewTTL[string, json.RawMessage](1, opts.CacheTTL),
	}
}

func (l *Launcher) requireAuth(ctx context.Context) error {
	ok, err := l.sess.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &rsierr.AuthenticationError{Diagnostic: "the launcher api requires a signed in session"}
	}
	return nil
}

func (l *Launcher) query(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	env, err := l.sess.QueryAPI(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Claims returns the entitlement claims of the signed in account.
func (l *Launcher) Claims(ctx context.Context) (Claims, error) {
	ctx, span := tracer.Start(ctx, "launcher:Claims")
	defer span.End()

	return l.claims.GetOrCompute("claims", func() (Claims, error) {
		err := l.requireAuth(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		claims, err := l.query(ctx, l.endpoints.Claims, nil)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			l.tel.ReportBroken(report_launcher_claims, err)
			return nil, err
		}
		return claims, nil
	})
}

// Library returns the games the signed in account owns.
func (l *Launcher) Library(ctx context.Context) (json.RawMessage, error) {
	return l.library.GetOrCompute("library", func() (json.RawMessage, error) {
		claims, err := l.Claims(ctx)
		if err != nil {
			return nil, err
		}
		library, err := l.query(ctx, l.endpoints.Library, map[string]any{"claims": claims})
		if err != nil {
			l.tel.ReportBroken(report_launcher_library, err)
			return nil, err
		}
		return library, nil
	})
}

func (l *Launcher) News(ctx context.Context, gameID string) (json.RawMessage, error) {
	if gameID == "" {
		gameID = DefaultGameID
	}
	news, err := l.query(ctx, l.endpoints.News, map[string]any{"game_id": gameID})
	if err != nil {
		l.tel.ReportWarning(report_launcher_content, "news", err)
	}
	return news, err
}

func (l *Launcher) PatchNotes(ctx context.Context, gameID, channelID string) (json.RawMessage, error) {
	if gameID == "" {
		gameID = DefaultGameID
	}
	if channelID == "" {
		channelID = DefaultChannelID
	}
	notes, err := l.query(ctx, l.endpoints.PatchNotes, map[string]any{
		"game_id":    gameID,
		"channel_id": channelID,
	})
	if err != nil {
		l.tel.ReportWarning(report_launcher_content, "patch notes", err)
	}
	return notes, err
}

// Release returns the release manifest of a game channel, it requires the
// account's claims.
func (l *Launcher) Release(ctx context.Context, gameID, channelID string) (json.RawMessage, error) {
	if gameID == "" {
		gameID = DefaultGameID
	}
	if channelID == "" {
		channelID = DefaultChannelID
	}
	claims, err := l.Claims(ctx)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, l.endpoints.Release, map[string]any{
		"claims":    claims,
		"gameId":    gameID,
		"channelId": channelID,
	})
}

// ClearCache drops the cached claims and library.
func (l *Launcher) ClearCache() {
	l.claims.Clear()
	l.library.Clear()
}
