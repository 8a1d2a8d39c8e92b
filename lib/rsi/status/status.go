// Package status reads the public status page api.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseUrl  = "https://status.robertsspaceindustries.com/static/content/api/v0"
	DefaultLanguage = "en"
)

var languageRegex = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})?$`)

type Options struct {
	BaseUrl   string
	Language  string
	Timeout   time.Duration
	Telemetry telemetry.API
}

type System struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Status           string     `json:"status"`
	UnresolvedIssues []Incident `json:"unresolvedIssues"`
}

type SystemStatus struct {
	SummaryStatus string   `json:"summaryStatus"`
	Systems       []System `json:"systems"`
}

type Incident struct {
	Title         string   `json:"title"`
	CreatedAt     string   `json:"createdAt"`
	LastMod       string   `json:"lastMod"`
	Permalink     string   `json:"permalink"`
	Severity      string   `json:"severity"`
	Resolved      bool     `json:"resolved"`
	Informational bool     `json:"informational"`
	ResolvedAt    string   `json:"resolvedAt"`
	Affected      []string `json:"affected"`
	Filename      string   `json:"filename"`
	Content       string   `json:"content"`
}

// Document is a status api response kept in its decoded json form.
type Document map[string]any

type Client struct {
	language string
	http     *resty.Client
}

func New(opts Options) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseUrl, "/"))
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, telemetry.OrDefault(opts.Telemetry), "rsi/status/http")

	return &Client{
		language: opts.Language,
		http:     client,
	}
}

func (c *Client) get(ctx context.Context, endpoint, language string, out any) error {
	if language == "" {
		language = c.language
	}
	if !languageRegex.MatchString(language) {
		return &rsierr.ValidationError{Field: "language", Value: language, Reason: "must be a language code"}
	}
	path := strings.ReplaceAll(endpoint, "{language}", language)

	res, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return &rsierr.TransportError{Method: "GET", Endpoint: path, Err: err}
	}
	if !res.IsSuccess() {
		return &rsierr.TransportError{Method: "GET", Endpoint: path, Status: res.StatusCode()}
	}

	err = json.Unmarshal(res.Body(), out)
	if err != nil {
		return rsierr.NewProtocolError(
			path,
			"could not decode json, the language may not be available",
			res.Body(),
			err,
		)
	}
	return nil
}

// System returns the current status of every system. An empty language uses the
// client's language.
func (c *Client) System(ctx context.Context, language string) (SystemStatus, error) {
	var out SystemStatus
	err := c.get(ctx, "/systems.{language}.json", language, &out)
	return out, err
}

// Timeline returns the incidents of the last days.
func (c *Client) Timeline(ctx context.Context, language string) (Document, error) {
	var out Document
	err := c.get(ctx, "/incidents/timeline.{language}.json", language, &out)
	return out, err
}

func (c *Client) Incident(ctx context.Context, id, language string) (Document, error) {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, &rsierr.ValidationError{Field: "incident id", Value: id, Reason: "must be a single path segment"}
	}
	var out Document
	err := c.get(ctx, fmt.Sprintf("/incidents/%s.{language}.json", id), language, &out)
	return out, err
}
