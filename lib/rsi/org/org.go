// Package org reads an organization's public page and member roster.
package org

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"gorsi/lib/assert"
	"gorsi/lib/cache"
	"gorsi/lib/fuzzy"
	"gorsi/lib/htmlutil"
	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rsi/org")

const (
	DefaultPageEndpoint    = "/orgs"
	DefaultMembersEndpoint = "/api/orgs/getOrgMembers"
	DefaultCacheTTL        = 300 * time.Second
)

const (
	report_org_details        = "org.details"
	report_org_members        = "org.members"
	report_org_members_hidden = "org.members-hidden"
)

var symbolRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Options struct {
	// AdminMode requests the roster as an org admin, which also returns member ids,
	// last online times and visibility.
	AdminMode       bool
	PageEndpoint    string
	MembersEndpoint string
	CacheTTL        time.Duration
	PageDelay       time.Duration
	Telemetry       telemetry.API
}

type Details struct {
	Banner         string
	Logo           string
	Name           string
	Symbol         string
	Model          string
	Commitment     string
	PrimaryFocus   string
	SecondaryFocus string
	JoinUs         string
	JoinUsMarkdown string
}

const (
	cacheDetails = "details"
	cacheMembers = "members"
)

type Org struct {
	sess   *session.Session
	symbol string
	opts   Options
	tel    telemetry.API

	details  *cache.TTL[string, Details]
	members  *cache.TTL[string, []Member]
	resolver fuzzy.Resolver[Member]
}

// New creates an Org and fetches its details, an org that does not exist is a
// NotFoundError.
func New(ctx context.Context, sess *session.Session, symbol string, opts Options) (*Org, error) {
	assert.NotNil(sess)
	if !symbolRegex.MatchString(symbol) {
		return nil, &rsierr.ValidationError{Field: "org symbol", Value: symbol, Reason: "must be alphanumeric"}
	}
	if opts.PageEndpoint == "" {
		opts.PageEndpoint = DefaultPageEndpoint
	}
	if opts.MembersEndpoint == "" {
		opts.MembersEndpoint = DefaultMembersEndpoint
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Telemetry == nil {
		opts.Telemetry = sess.Telemetry()
	}

	o := &Org{
		sess:    sess,
		symbol:  symbol,
		opts:    opts,
		tel:     telemetry.NewScopedAPI(symbol, opts.Telemetry),
		details: cache.NewTTL[string, Details](1, opts.CacheTTL),
		members: cache.NewTTL[string, []Member](1, opts.CacheTTL),
	}
	o.resolver = fuzzy.NewResolver[Member](o.Members, func(m Member) string {
		return m.Handle
	})

	_, err := o.Details(ctx)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Org) Symbol() string {
	return o.symbol
}

// URL is the org's public page.
func (o *Org) URL() string {
	return o.sess.URL(fmt.Sprintf("%s/%s", strings.TrimRight(o.opts.PageEndpoint, "/"), url.PathEscape(o.symbol)))
}

func (o *Org) SpectrumURL() string {
	return o.sess.URL("/spectrum/community/" + url.PathEscape(o.symbol))
}

// ClearCache drops the cached details and roster.
func (o *Org) ClearCache() {
	o.details.Clear()
	o.members.Clear()
}

func (o *Org) Details(ctx context.Context) (Details, error) {
	return o.details.GetOrCompute(cacheDetails, func() (Details, error) {
		return o.fetchDetails(ctx)
	})
}

func (o *Org) fetchDetails(ctx context.Context) (Details, error) {
	ctx, span := tracer.Start(ctx, "org:fetchDetails")
	defer span.End()

	path := fmt.Sprintf("%s/%s", strings.TrimRight(o.opts.PageEndpoint, "/"), url.PathEscape(o.symbol))
	res, err := o.sess.Get(ctx, path)
	var transportErr *rsierr.TransportError
	if errors.As(err, &transportErr) && transportErr.Status == http.StatusNotFound {
		span.SetStatus(codes.Error, "not found")
		return Details{}, &rsierr.NotFoundError{Kind: "organization", Key: o.symbol}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.tel.ReportBroken(report_org_details, err)
		return Details{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return Details{}, rsierr.NewProtocolError(path, "parse org page", nil, err)
	}
	details, err := o.parseDetails(doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.tel.ReportBroken(report_org_details, err)
		return Details{}, rsierr.NewProtocolError(path, "parse org page", nil, err)
	}
	return details, nil
}

func (o *Org) parseDetails(doc *goquery.Document) (Details, error) {
	heading := htmlutil.Text(doc.Find(".inner h1").First())
	sep := strings.LastIndex(heading, " / ")
	if sep < 0 {
		return Details{}, fmt.Errorf("org heading %q is not of the form 'name / symbol'", heading)
	}

	joinUs := doc.Find(".join-us .body").First()
	joinUsMarkdown, err := htmlutil.ToMarkdown(joinUs)
	if err != nil {
		o.tel.ReportWarning(report_org_details, fmt.Errorf("convert join us to markdown: %w", err))
	}

	base := o.sess.BaseURL()
	return Details{
		Banner:         htmlutil.Resolve(base, doc.Find(".banner img").First().AttrOr("src", "")),
		Logo:           htmlutil.Resolve(base, doc.Find(".logo img").First().AttrOr("src", "")),
		Name:           strings.TrimSpace(heading[:sep]),
		Symbol:         strings.TrimSpace(heading[sep+3:]),
		Model:          htmlutil.Text(doc.Find(".inner .tags .model").First()),
		Commitment:     htmlutil.Text(doc.Find(".inner .tags .commitment").First()),
		PrimaryFocus:   doc.Find(".inner .focus .primary img").First().AttrOr("alt", ""),
		SecondaryFocus: doc.Find(".inner .focus .secondary img").First().AttrOr("alt", ""),
		JoinUs:         htmlutil.Text(joinUs),
		JoinUsMarkdown: joinUsMarkdown,
	}, nil
}

// Search fuzzy matches handle against the handles of the roster.
func (o *Org) Search(ctx context.Context, handle string, cutoff, limit int) ([]fuzzy.Result[Member], error) {
	return o.resolver.Search(ctx, handle, cutoff, limit)
}

// SearchOne returns the member whose handle best matches the given one.
func (o *Org) SearchOne(ctx context.Context, handle string) (Member, bool, error) {
	return o.resolver.SearchOne(ctx, handle)
}
