package citizen

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"gorsi/lib/htmlutil"
	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"

	"github.com/PuerkitoBio/goquery"
)

// fetchOrgs is best effort, failures are reported and yield the orgs that could
// be read.
func (c Client) fetchOrgs(ctx context.Context, path, handle string) []Org {
	orgs := []Org{}

	res, err := c.sess.Get(ctx, path)
	if err != nil {
		c.tel.ReportWarning(report_citizen_orgs, err, handle)
		return orgs
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportWarning(report_citizen_orgs, err, handle)
		return orgs
	}

	base := c.sess.BaseURL()
	doc.Find(".orgs-content .org").Each(func(_ int, sel *goquery.Selection) {
		values := sel.Find(".info .entry .value")
		if values.Length() < 3 {
			c.tel.ReportWarning(report_citizen_orgs, "org entry has less than 3 values", handle)
			return
		}

		org := Org{
			Icon:  htmlutil.Resolve(base, sel.Find(".thumb img").First().AttrOr("src", "")),
			Roles: []string{},
		}
		rawName := values.First().Text()
		if strings.HasPrefix(rawName, "\u00a0") || htmlutil.NormalizeSpace(rawName) == "" {
			org.Name, org.SID, org.Rank = Redacted, Redacted, Redacted
			org.Redacted = true
			orgs = append(orgs, org)
			return
		}

		texts := htmlutil.Texts(values)
		org.Name, org.SID, org.Rank = texts[0], texts[1], texts[2]
		roles, err := c.fetchRoles(ctx, org.SID, handle)
		if err != nil {
			c.tel.ReportWarning(report_citizen_roles, err, org.SID, handle)
		} else {
			org.Roles = roles
		}
		orgs = append(orgs, org)
	})
	return orgs
}

// fetchRoles looks the citizen up in the org's roster to read their roles.
func (c Client) fetchRoles(ctx context.Context, sid, handle string) ([]string, error) {
	endpoint := c.opts.MembersEndpoint
	res, err := c.sess.PostForm(ctx, endpoint, url.Values{
		"symbol": {sid},
		"search": {handle},
	})
	if err != nil {
		return nil, err
	}
	env, err := session.DecodeEnvelope(endpoint, res.Body())
	if err != nil {
		return nil, err
	}
	if !env.Ok() {
		return nil, rsierr.NewProtocolError(endpoint, "roles lookup unsuccessful", res.Body(), nil)
	}
	var data struct {
		Html string `json:"html"`
	}
	err = env.DecodeData(&data)
	if err != nil {
		return nil, rsierr.NewProtocolError(endpoint, "decode roles", res.Body(), err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(data.Html))
	if err != nil {
		return nil, err
	}
	items := doc.Find(".member-item")
	var roles []string
	items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if strings.EqualFold(htmlutil.Text(item.Find(".nick").First()), handle) {
			roles = htmlutil.Texts(item.Find(".rolelist .role"))
			return false
		}
		return true
	})
	if roles == nil {
		roles = htmlutil.Texts(doc.Find(".rolelist .role"))
	}
	return roles, nil
}
