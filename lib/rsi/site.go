// Package rsi ties the site's facades together over a single session.
package rsi

import (
	"context"

	"gorsi/lib/assert"
	"gorsi/lib/cache"
	"gorsi/lib/rsi/citizen"
	"gorsi/lib/rsi/launcher"
	"gorsi/lib/rsi/org"
	"gorsi/lib/rsi/roadmap"
	"gorsi/lib/rsi/session"
	"gorsi/lib/rsi/shipmatrix"
	"gorsi/lib/rsi/status"
	"gorsi/lib/rsi/store"
)

type Options struct {
	Session         session.Config
	Store           store.Options
	ShipMatrix      shipmatrix.Options
	Status          status.Options
	Launcher        launcher.Options
	Citizen         citizen.Options
	Org             org.Options
	RoadmapEndpoint string
}

type Site struct {
	Session    *session.Session
	Store      *store.Store
	ShipMatrix *shipmatrix.ShipMatrix
	Status     *status.Client
	Roadmap    roadmap.Roadmap
	Launcher   *launcher.Launcher

	citizens citizen.Client
	orgOpts  org.Options
	orgs     *cache.TTL[string, *org.Org]
}

// maxOrgs bounds how many orgs a Site keeps between lookups.
const maxOrgs = 256

// New creates the session described by opts.Session and the facades over it.
func New(opts Options) (*Site, error) {
	sess, err := session.New(opts.Session)
	if err != nil {
		return nil, err
	}
	return NewWithSession(sess, opts), nil
}

// NewWithSession creates the facades over an existing session, opts.Session is
// ignored. The ship matrix takes its pledge prices from the store unless
// opts.ShipMatrix.Pledges is set.
func NewWithSession(sess *session.Session, opts Options) *Site {
	assert.NotNil(sess)
	if opts.Status.Telemetry == nil {
		opts.Status.Telemetry = sess.Telemetry()
	}

	if opts.Org.CacheTTL == 0 {
		opts.Org.CacheTTL = org.DefaultCacheTTL
	}

	pledges := store.New(sess, opts.Store)
	if opts.ShipMatrix.Pledges == nil {
		opts.ShipMatrix.Pledges = pledges
	}

	return &Site{
		Session:    sess,
		Store:      pledges,
		ShipMatrix: shipmatrix.New(sess, opts.ShipMatrix),
		Status:     status.New(opts.Status),
		Roadmap:    roadmap.New(sess, opts.RoadmapEndpoint),
		Launcher:   launcher.New(sess, opts.Launcher),
		citizens:   citizen.New(sess, opts.Citizen),
		orgOpts:    opts.Org,
		orgs:       cache.NewTTL[string, *org.Org](maxOrgs, opts.Org.CacheTTL),
	}
}

func (s *Site) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.Session.IsAuthenticated(ctx)
}

func (s *Site) Authenticate(ctx context.Context, username, password string, force bool) error {
	return s.Session.Authenticate(ctx, username, password, force)
}

func (s *Site) Citizen(ctx context.Context, handle string, skipOrgs bool) (citizen.Citizen, error) {
	return s.citizens.Fetch(ctx, handle, skipOrgs)
}

// Org returns the organization with the given symbol. The same Org is returned
// for a symbol until its cache ttl elapses, so its details and roster are fetched
// at most once per window.
func (s *Site) Org(ctx context.Context, symbol string) (*org.Org, error) {
	return s.orgs.GetOrCompute(symbol, func() (*org.Org, error) {
		return org.New(ctx, s.Session, symbol, s.orgOpts)
	})
}
