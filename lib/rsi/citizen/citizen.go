// Package citizen reads public citizen profiles.
package citizen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gorsi/lib/assert"
	"gorsi/lib/htmlutil"
	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rsi/citizen")

const (
	DefaultEndpoint        = "/citizens"
	DefaultMembersEndpoint = "/api/orgs/getOrgMembers"
	// Redacted replaces the name, sid and rank of an org the citizen keeps hidden.
	Redacted = "REDACTED"
)

const (
	report_citizen_orgs  = "citizen.orgs"
	report_citizen_roles = "citizen.roles"
)

var handleRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Org struct {
	Name     string
	SID      string
	Rank     string
	Roles    []string
	Icon     string
	Redacted bool
}

type Citizen struct {
	Username  string
	Handle    string
	Title     string
	TitleIcon string
	Avatar    string
	URL       string
	Bio       string
	// Record is the citizen number, RecordText is the raw value it was parsed from.
	Record     int
	RecordText string
	Enlisted   string
	Location   string
	Languages  []string
	// Orgs is nil when the orgs were skipped.
	Orgs []Org
}

type Options struct {
	Endpoint        string
	MembersEndpoint string
	Telemetry       telemetry.API
}

type Client struct {
	sess *session.Session
	opts Options
	tel  telemetry.API
}

func New(sess *session.Session, opts Options) Client {
	assert.NotNil(sess)
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.MembersEndpoint == "" {
		opts.MembersEndpoint = DefaultMembersEndpoint
	}
	if opts.Telemetry == nil {
		opts.Telemetry = sess.Telemetry()
	}
	return Client{sess: sess, opts: opts, tel: opts.Telemetry}
}

func (c Client) profilePath(handle string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.opts.Endpoint, "/"), url.PathEscape(handle))
}

// Fetch reads a citizen's profile and, unless skipOrgs is set, the orgs they are
// part of along with their roles in each.
func (c Client) Fetch(ctx context.Context, handle string, skipOrgs bool) (Citizen, error) {
	ctx, span := tracer.Start(ctx, "citizen:Fetch")
	defer span.End()

	if !handleRegex.MatchString(handle) {
		return Citizen{}, &rsierr.ValidationError{Field: "handle", Value: handle, Reason: "must be alphanumeric"}
	}

	path := c.profilePath(handle)
	res, err := c.sess.Get(ctx, path)
	var transportErr *rsierr.TransportError
	if errors.As(err, &transportErr) && transportErr.Status == http.StatusNotFound {
		return Citizen{}, &rsierr.NotFoundError{Kind: "citizen", Key: handle}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Citizen{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return Citizen{}, rsierr.NewProtocolError(path, "parse profile", nil, err)
	}
	citizen := c.parseProfile(doc)
	citizen.URL = c.sess.URL(path)
	if citizen.Handle == "" {
		return Citizen{}, &rsierr.NotFoundError{Kind: "citizen", Key: handle}
	}

	if !skipOrgs {
		citizen.Orgs = c.fetchOrgs(ctx, path+"/organizations", handle)
	}
	return citizen, nil
}

func (c Client) parseProfile(doc *goquery.Document) Citizen {
	base := c.sess.BaseURL()

	info := htmlutil.Texts(doc.Find(".info .value"))
	get := func(i int) string {
		if i < len(info) {
			return info[i]
		}
		return ""
	}

	citizen := Citizen{
		Username:  get(0),
		Handle:    get(1),
		Title:     get(2),
		TitleIcon: htmlutil.Resolve(base, doc.Find(".info .icon img").First().AttrOr("src", "")),
		Avatar:    htmlutil.Resolve(base, doc.Find(".profile .thumb img").First().AttrOr("src", "")),
		Bio:       parseBio(doc.Find(".profile-content .bio").First()),
	}

	citizen.RecordText = htmlutil.Text(doc.Find(".citizen-record .value").First())
	if len(citizen.RecordText) > 1 {
		record, err := strconv.Atoi(citizen.RecordText[1:])
		if err == nil {
			citizen.Record = record
		}
	}

	entries := map[string]string{}
	doc.Find(".profile-content > .left-col .entry").Each(func(_ int, entry *goquery.Selection) {
		label := htmlutil.Text(entry.Find("span").First())
		value := htmlutil.Text(entry.Find(".value").First())
		entries[label] = strings.ReplaceAll(value, " ,", ",")
	})
	citizen.Enlisted = entries["Enlisted"]
	citizen.Location = entries["Location"]
	citizen.Languages = strings.Fields(strings.ReplaceAll(entries["Fluency"], ",", ""))

	return citizen
}

func parseBio(bio *goquery.Selection) string {
	if bio.Length() == 0 {
		return ""
	}
	if value := bio.Find(".value"); value.Length() > 0 {
		return htmlutil.Text(value.First())
	}
	return strings.TrimSpace(strings.TrimPrefix(htmlutil.Text(bio), "Bio"))
}
