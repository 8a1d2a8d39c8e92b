package org

import (
	"context"
	"strings"

	"gorsi/lib/htmlutil"
	"gorsi/lib/rsi/pagination"

	"github.com/PuerkitoBio/goquery"
)

// DefaultVisibility is the visibility reported for members when not in admin mode.
const DefaultVisibility = "Membership: Visible"

type Member struct {
	// ID, LastOnline are only known in admin mode.
	ID         string
	Name       string
	Handle     string
	Avatar     string
	Affiliate  bool
	Rank       string
	Roles      []string
	URL        string
	Visibility string
	LastOnline string
}

// Members returns the full roster. Hidden members are not included.
func (o *Org) Members(ctx context.Context) ([]Member, error) {
	return o.members.GetOrCompute(cacheMembers, func() ([]Member, error) {
		return o.fetchMembers(ctx, "")
	})
}

// FindMembers returns the members matching a server side search, the result is
// not cached.
func (o *Org) FindMembers(ctx context.Context, search string) ([]Member, error) {
	return o.fetchMembers(ctx, search)
}

func (o *Org) fetchMembers(ctx context.Context, search string) ([]Member, error) {
	ctx, span := tracer.Start(ctx, "org:fetchMembers")
	defer span.End()

	params := map[string]any{
		"symbol": o.symbol,
		"search": search,
	}
	if o.opts.AdminMode {
		params["admin_mode"] = 1
	}

	hidden := 0
	members, err := pagination.Fetch(ctx, o.sess, pagination.Request[Member]{
		Endpoint: o.opts.MembersEndpoint,
		Params:   params,
		Encoding: pagination.EncodingForm,
		Parse: func(page pagination.Page) ([]Member, int, error) {
			members, scanned, err := o.parseMembers(page)
			hidden += scanned - len(members)
			return members, scanned, err
		},
		Delay:     o.opts.PageDelay,
		Telemetry: o.tel,
	})
	if err != nil {
		o.tel.ReportBroken(report_org_members, err)
		return nil, err
	}
	o.tel.ReportCount(report_org_members_hidden, int64(hidden))
	return members, nil
}

func (o *Org) parseMembers(page pagination.Page) ([]Member, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Html))
	if err != nil {
		return nil, 0, err
	}

	base := o.sess.BaseURL()
	var members []Member
	scanned := 0
	doc.Find(".member-item").Each(func(_ int, item *goquery.Selection) {
		scanned++
		if item.Find(".member-visibility-restriction").Length() > 0 {
			o.tel.ReportDebug("skipping hidden member", page.Number)
			return
		}

		member := Member{
			Name:       htmlutil.Text(item.Find(".name").First()),
			Handle:     htmlutil.Text(item.Find(".nick").First()),
			Avatar:     htmlutil.Resolve(base, item.Find("img").First().AttrOr("src", "")),
			Affiliate:  htmlutil.Text(item.Find(".title").First()) == "Affiliate",
			Rank:       htmlutil.Text(item.Find(".rank").First()),
			Roles:      htmlutil.Texts(item.Find(".rolelist .role")),
			URL:        htmlutil.Resolve(base, item.Find("a.membercard").First().AttrOr("href", "")),
			Visibility: DefaultVisibility,
		}
		if o.opts.AdminMode {
			member.ID = item.AttrOr("data-member-id", "")
			member.LastOnline = htmlutil.Text(item.Find(".frontinfo .lastonline").First())
			member.Visibility = htmlutil.Text(item.Find(".frontinfo .visibility").First())
		}
		members = append(members, member)
	})
	return members, scanned, nil
}
