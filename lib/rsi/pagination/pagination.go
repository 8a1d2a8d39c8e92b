// Package pagination assembles list resources that the site only hands out in
// pages of html fragments.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultDelay       = 500 * time.Millisecond
	DefaultRetryBudget = 3
)

const (
	report_pagination_page        = "pagination.page"
	report_pagination_no_progress = "pagination.no-progress"
	report_pagination_rows        = "pagination.rows"
)

type Encoding int

const (
	EncodingForm Encoding = iota
	EncodingJSON
)

// Page is the data of a single page envelope.
type Page struct {
	Number    int         `json:"-"`
	Html      string      `json:"html"`
	RowCount  session.Int `json:"rowcount"`
	TotalRows session.Int `json:"totalrows"`
}

type envelope struct {
	Success session.Int `json:"success"`
	Code    string      `json:"code"`
	Msg     string      `json:"msg"`
	Data    Page        `json:"data"`
}

// Parser turns a page into items. scanned is the number of rows examined on the
// page, including the ones that were skipped.
type Parser[T any] func(page Page) (items []T, scanned int, err error)

// Poster is the part of a session.Session the fetcher needs.
type Poster interface {
	PostForm(ctx context.Context, path string, form url.Values) (*resty.Response, error)
	PostJSON(ctx context.Context, path string, body any) (*resty.Response, error)
}

type Request[T any] struct {
	Endpoint string
	// Params are sent with every page alongside the page number.
	Params   map[string]any
	Encoding Encoding
	Parse    Parser[T]

	// MaxPages stops the fetch after the given amount of pages, 0 means no limit.
	MaxPages int
	// Delay is the minimum time between two page requests, defaults to
	// DefaultDelay. A negative delay disables throttling.
	Delay time.Duration
	// RetryBudget is the amount of consecutive pages that may make no progress
	// before the fetch is abandoned, defaults to DefaultRetryBudget.
	RetryBudget int

	Telemetry telemetry.API
}

func (r Request[T]) body(page int) (url.Values, map[string]any) {
	switch r.Encoding {
	case EncodingJSON:
		body := make(map[string]any, len(r.Params)+1)
		for k, v := range r.Params {
			body[k] = v
		}
		body["page"] = page
		return nil, body
	default:
		form := url.Values{}
		for k, v := range r.Params {
			form.Set(k, fmt.Sprint(v))
		}
		form.Set("page", fmt.Sprint(page))
		return form, nil
	}
}

// Fetch posts page after page to the endpoint until the total row count
// reported by the first page has been scanned.
func Fetch[T any](ctx context.Context, poster Poster, req Request[T]) ([]T, error) {
	if req.Parse == nil {
		return nil, fmt.Errorf("pagination: no parser for %s", req.Endpoint)
	}
	tel := telemetry.OrDefault(req.Telemetry)
	delay := req.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	budget := req.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}

	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	var out []T
	total := -1
	seen := 0
	stalled := 0
	for page := 1; req.MaxPages <= 0 || page <= req.MaxPages; page++ {
		if limiter != nil {
			err := limiter.Wait(ctx)
			if err != nil {
				return nil, err
			}
		}

		var res *resty.Response
		var err error
		form, body := req.body(page)
		if form != nil {
			res, err = poster.PostForm(ctx, req.Endpoint, form)
		} else {
			res, err = poster.PostJSON(ctx, req.Endpoint, body)
		}
		if err != nil {
			return nil, err
		}

		var env envelope
		err = json.Unmarshal(res.Body(), &env)
		if err != nil {
			return nil, rsierr.NewProtocolError(req.Endpoint, fmt.Sprintf("decode page %d", page), res.Body(), err)
		}
		if env.Success != 1 {
			reason := fmt.Sprintf("page %d unsuccessful", page)
			if env.Code != "" {
				reason += " [" + env.Code + "]"
			}
			return nil, rsierr.NewProtocolError(req.Endpoint, reason, res.Body(), nil)
		}
		if total < 0 {
			total = int(env.Data.TotalRows)
		}

		env.Data.Number = page
		items, scanned, err := req.Parse(env.Data)
		if err != nil {
			return nil, rsierr.NewProtocolError(req.Endpoint, fmt.Sprintf("parse page %d", page), nil, err)
		}
		out = append(out, items...)
		seen += scanned
		tel.ReportDebug(report_pagination_page, req.Endpoint, page, scanned, seen, total)

		if seen >= total {
			break
		}
		if scanned > 0 {
			stalled = 0
			continue
		}
		stalled++
		tel.ReportWarning(report_pagination_no_progress, req.Endpoint, page, seen, total)
		if stalled > budget {
			return nil, rsierr.NewProtocolError(
				req.Endpoint,
				fmt.Sprintf("no progress after %d pages (%d of %d rows)", stalled, seen, total),
				res.Body(),
				nil,
			)
		}
	}

	tel.ReportCount(report_pagination_rows, int64(len(out)))
	return out, nil
}
