// Package store reads the pledge store: sku listings and the ship upgrade catalog.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorsi/lib/assert"
	"gorsi/lib/cache"
	"gorsi/lib/htmlutil"
	"gorsi/lib/rsi/pagination"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultSKUEndpoint          = "/api/store/getSKUs"
	DefaultUpgradeEndpoint      = "/pledge-store/api/upgrade"
	DefaultContextTokenEndpoint = "/pledge-store/api/setContextToken"
	DefaultCacheTTL             = 300 * time.Second
	DefaultMaxPages             = 9999
)

const (
	report_store_sku      = "store.sku"
	report_store_upgrades = "store.upgrades"
)

// ProductIDs are the known product ids that can be used to filter the sku listing.
var ProductIDs = map[string]int{
	"standalone_ships": 72,
	"paints":           268,
	"gift_cards":       60,
	"addons":           3,
	"uec":              41,
	"event_tickets":    67,
	"digital_goodies":  222,
}

type SKU struct {
	Title string
	Image string
	// Price is the raw data-value of the price, PriceText is what is displayed.
	Price     string
	PriceText string
	Stock     string
	Link      string
}

type SKUQuery struct {
	// ProductID filters by product, 0 means any.
	ProductID int
	Search    string
	// Storefront defaults to "pledge".
	Storefront string
	Type       string
	// Sort defaults to "price_desc".
	Sort string
	// MaxPages defaults to DefaultMaxPages.
	MaxPages int
}

type Options struct {
	SKUEndpoint          string
	UpgradeEndpoint      string
	ContextTokenEndpoint string
	CacheTTL             time.Duration
	// PageDelay is passed on to the paginated fetch.
	PageDelay time.Duration
	Telemetry telemetry.API
}

type Store struct {
	sess     *session.Session
	opts     Options
	tel      telemetry.API
	upgrades *cache.TTL[string, map[int]Ship]
}

func New(sess *session.Session, opts Options) *Store {
	assert.NotNil(sess)
	if opts.SKUEndpoint == "" {
		opts.SKUEndpoint = DefaultSKUEndpoint
	}
	if opts.UpgradeEndpoint == "" {
		opts.UpgradeEndpoint = DefaultUpgradeEndpoint
	}
	if opts.ContextTokenEndpoint == "" {
		opts.ContextTokenEndpoint = DefaultContextTokenEndpoint
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Telemetry == nil {
		opts.Telemetry = sess.Telemetry()
	}
	return &Store{
		sess:     sess,
		opts:     opts,
		tel:      opts.Telemetry,
		upgrades: cache.NewTTL[string, map[int]Ship](1, opts.CacheTTL),
	}
}

// SKUs lists every sku matching the query across all pages.
func (s *Store) SKUs(ctx context.Context, q SKUQuery) ([]SKU, error) {
	if q.Storefront == "" {
		q.Storefront = "pledge"
	}
	if q.Sort == "" {
		q.Sort = "price_desc"
	}
	if q.MaxPages == 0 {
		q.MaxPages = DefaultMaxPages
	}
	var productId any = ""
	if q.ProductID != 0 {
		productId = q.ProductID
	}

	return pagination.Fetch(ctx, s.sess, pagination.Request[SKU]{
		Endpoint: s.opts.SKUEndpoint,
		Encoding: pagination.EncodingJSON,
		Params: map[string]any{
			"product_id": productId,
			"search":     q.Search,
			"storefront": q.Storefront,
			"type":       q.Type,
			"sort":       q.Sort,
		},
		Parse:     s.parseSKUs,
		MaxPages:  q.MaxPages,
		Delay:     s.opts.PageDelay,
		Telemetry: s.tel,
	})
}

// Extras lists the "extras" skus.
func (s *Store) Extras(ctx context.Context, q SKUQuery) ([]SKU, error) {
	q.Type = "extras"
	return s.SKUs(ctx, q)
}

// GamePackages lists the game package skus.
func (s *Store) GamePackages(ctx context.Context, q SKUQuery) ([]SKU, error) {
	q.Type = "game-packages"
	return s.SKUs(ctx, q)
}

func (s *Store) parseSKUs(page pagination.Page) ([]SKU, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Html))
	if err != nil {
		return nil, 0, err
	}

	var skus []SKU
	items := doc.Find("div.product-item.js-ecommerce-tracking-sku")
	items.Each(func(i int, item *goquery.Selection) {
		sku, err := s.parseSKU(item)
		if err != nil {
			s.tel.ReportWarning(report_store_sku, err, page.Number, i)
			return
		}
		skus = append(skus, sku)
	})

	scanned := int(page.RowCount)
	if scanned <= 0 {
		scanned = items.Length()
	}
	return skus, scanned, nil
}

func (s *Store) parseSKU(item *goquery.Selection) (SKU, error) {
	title := item.Find(".title").First()
	price := item.Find(".final-price").First()
	state := item.Find(".state").First()
	more := item.Find(".more").First()
	required := []struct {
		name string
		sel  *goquery.Selection
	}{
		{".title", title},
		{".final-price", price},
		{".state", state},
		{".more", more},
	}
	for _, r := range required {
		if r.sel.Length() == 0 {
			return SKU{}, fmt.Errorf("sku is missing %s", r.name)
		}
	}

	return SKU{
		Title:     htmlutil.Text(title),
		Image:     item.Find("img").First().AttrOr("src", ""),
		Price:     price.AttrOr("data-value", ""),
		PriceText: htmlutil.Text(price),
		Stock:     htmlutil.Text(state),
		Link:      s.sess.URL(more.AttrOr("href", "")),
	}, nil
}

// Cents parses the price data value of a sku.
func (s SKU) Cents() (int64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(s.Price), 64)
	if err != nil {
		return 0, err
	}
	return int64(value), nil
}
