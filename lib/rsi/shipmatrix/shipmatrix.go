// Package shipmatrix reads the ship matrix and enriches it with pledge prices,
// 3d model ids and the loaner ships given out with each pledge.
package shipmatrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gorsi/lib/assert"
	"gorsi/lib/cache"
	"gorsi/lib/fuzzy"
	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/rsi/store"
	"gorsi/lib/snapshot"
	"gorsi/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rsi/shipmatrix")

const (
	DefaultEndpoint    = "/ship-matrix/index"
	DefaultLoanerURL   = "https://support.robertsspaceindustries.com/hc/en-us/articles/360003093114-Loaner-Ship-Matrix"
	DefaultCacheTTL    = 300 * time.Second
	DefaultSnapshotKey = "shipmatrix"
)

const (
	report_shipmatrix_fetch    = "shipmatrix.fetch"
	report_shipmatrix_pledge   = "shipmatrix.pledge"
	report_shipmatrix_model    = "shipmatrix.model"
	report_shipmatrix_loaners  = "shipmatrix.loaners"
	report_shipmatrix_snapshot = "shipmatrix.snapshot"
)

var modelRegex = regexp.MustCompile(`model_3d:\s*'(\S+)'`)

// PledgeSource provides the msrp of every ship by id, store.Store implements it.
type PledgeSource interface {
	ShipUpgrades(ctx context.Context) (map[int]store.Ship, error)
}

type Options struct {
	Endpoint string
	CacheTTL time.Duration

	// Pledges enriches ships with their pledge cost, nil disables it.
	Pledges       PledgeSource
	DisableModels bool

	DisableLoaners   bool
	LoanerURL        string
	LoanerExceptions []LoanerException

	// Snapshot persists the enriched matrix, it is reused for SnapshotMaxAge
	// (0 means forever) instead of fetching the matrix again.
	Snapshot       *snapshot.Store
	SnapshotKey    string
	SnapshotMaxAge time.Duration

	Timeout   time.Duration
	Telemetry telemetry.API
}

// Text is a matrix value that is sent as either a string or a number.
type Text string

func (t *Text) UnmarshalJSON(buff []byte) error {
	if string(buff) == "null" {
		*t = ""
		return nil
	}
	if len(buff) > 0 && buff[0] == '"' {
		var s string
		err := json.Unmarshal(buff, &s)
		*t = Text(s)
		return err
	}
	var n json.Number
	err := json.Unmarshal(buff, &n)
	if err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

type Manufacturer struct {
	ID          session.Int `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	KnownFor    string      `json:"known_for"`
}

type LoanerRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Ship struct {
	ID               session.Int  `json:"id"`
	ChassisID        session.Int  `json:"chassis_id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	URL              string       `json:"url"`
	Type             string       `json:"type"`
	Focus            string       `json:"focus"`
	Size             string       `json:"size"`
	ProductionStatus string       `json:"production_status"`
	ProductionNote   string       `json:"production_note"`
	Length           Text         `json:"length"`
	Beam             Text         `json:"beam"`
	Height           Text         `json:"height"`
	Mass             Text         `json:"mass"`
	CargoCapacity    Text         `json:"cargo_capacity"`
	MinCrew          Text         `json:"min_crew"`
	MaxCrew          Text         `json:"max_crew"`
	ScmSpeed         Text         `json:"scm_speed"`
	AfterburnerSpeed Text         `json:"afterburner_speed"`
	Manufacturer     Manufacturer `json:"manufacturer"`

	// PledgeCost is in dollars, 0 when unknown.
	PledgeCost float64     `json:"pledge_cost,omitempty"`
	Model3D    string      `json:"model_3d,omitempty"`
	Loaners    []LoanerRef `json:"loaners,omitempty"`
}

// UnmarshalJSON accepts the matrix's "cargocapacity" as well as "cargo_capacity".
func (s *Ship) UnmarshalJSON(buff []byte) error {
	type plain Ship
	var raw struct {
		plain
		LegacyCargoCapacity *Text `json:"cargocapacity"`
	}
	err := json.Unmarshal(buff, &raw)
	if err != nil {
		return err
	}
	*s = Ship(raw.plain)
	if raw.LegacyCargoCapacity != nil && s.CargoCapacity == "" {
		s.CargoCapacity = *raw.LegacyCargoCapacity
	}
	return nil
}

type matrixResponse struct {
	Msg  string `json:"msg"`
	Data []Ship `json:"data"`
}

const cacheShips = "ships"

type ShipMatrix struct {
	sess     *session.Session
	opts     Options
	tel      telemetry.API
	support  *resty.Client
	ships    *cache.TTL[string, []Ship]
	resolver fuzzy.Resolver[Ship]
}

func New(sess *session.Session, opts Options) *ShipMatrix {
	assert.NotNil(sess)
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.LoanerURL == "" {
		opts.LoanerURL = DefaultLoanerURL
	}
	if opts.LoanerExceptions == nil {
		opts.LoanerExceptions = DefaultLoanerExceptions
	}
	if opts.SnapshotKey == "" {
		opts.SnapshotKey = DefaultSnapshotKey
	}
	if opts.Timeout == 0 {
		opts.Timeout = session.DefaultTimeout
	}
	if opts.Telemetry == nil {
		opts.Telemetry = sess.Telemetry()
	}

	support := resty.New()
	support.SetTimeout(opts.Timeout)
	support.SetHeader("User-Agent", session.DefaultUserAgent)
	telemetry.InstrumentResty(support, opts.Telemetry, "rsi/shipmatrix/http")

	m := &ShipMatrix{
		sess:    sess,
		opts:    opts,
		tel:     opts.Telemetry,
		support: support,
		ships:   cache.NewTTL[string, []Ship](1, opts.CacheTTL),
	}
	m.resolver = fuzzy.NewResolver[Ship](m.List, func(s Ship) string {
		return s.Name
	})
	return m
}

// List returns every ship sorted by id.
func (m *ShipMatrix) List(ctx context.Context) ([]Ship, error) {
	return m.ships.GetOrCompute(cacheShips, func() ([]Ship, error) {
		return m.fetch(ctx)
	})
}

func (m *ShipMatrix) ByID(ctx context.Context, id int) (Ship, error) {
	ships, err := m.List(ctx)
	if err != nil {
		return Ship{}, err
	}
	for _, s := range ships {
		if int(s.ID) == id {
			return s, nil
		}
	}
	return Ship{}, &rsierr.NotFoundError{Kind: "ship", Key: strconv.Itoa(id)}
}

// SearchByName returns the ships whose name scores at least cutoff against name,
// best first. limit <= 0 means no limit.
func (m *ShipMatrix) SearchByName(ctx context.Context, name string, cutoff, limit int) ([]fuzzy.Result[Ship], error) {
	return m.resolver.Search(ctx, name, cutoff, limit)
}

func (m *ShipMatrix) ClearCache() {
	m.ships.Clear()
}

func (m *ShipMatrix) fetch(ctx context.Context) ([]Ship, error) {
	ctx, span := tracer.Start(ctx, "fetch")
	defer span.End()

	ships, fresh := m.readSnapshot(ctx)
	if !fresh {
		var err error
		ships, err = m.fetchMatrix(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			m.tel.ReportBroken(report_shipmatrix_fetch, err)
			return nil, err
		}
		if m.opts.Pledges != nil {
			m.addPledgeCosts(ctx, ships)
		}
		if !m.opts.DisableModels {
			m.addModels(ctx, ships)
		}
		m.writeSnapshot(ctx, ships)
	}

	if !m.opts.DisableLoaners {
		m.addLoaners(ctx, ships)
	}
	m.tel.ReportCount(report_shipmatrix_fetch, int64(len(ships)))
	return ships, nil
}

func (m *ShipMatrix) fetchMatrix(ctx context.Context) ([]Ship, error) {
	res, err := m.sess.Get(ctx, m.opts.Endpoint)
	if err != nil {
		return nil, err
	}
	var matrix matrixResponse
	err = json.Unmarshal(res.Body(), &matrix)
	if err != nil {
		return nil, rsierr.NewProtocolError(m.opts.Endpoint, "decode ship matrix", res.Body(), err)
	}
	if matrix.Msg != "OK" {
		return nil, rsierr.NewProtocolError(m.opts.Endpoint, fmt.Sprintf("unexpected msg %q", matrix.Msg), res.Body(), nil)
	}

	ships := matrix.Data
	sort.SliceStable(ships, func(i, j int) bool {
		return ships[i].ID < ships[j].ID
	})
	return ships, nil
}

func (m *ShipMatrix) addPledgeCosts(ctx context.Context, ships []Ship) {
	upgrades, err := m.opts.Pledges.ShipUpgrades(ctx)
	if err != nil {
		m.tel.ReportWarning(report_shipmatrix_pledge, err)
		return
	}
	for i := range ships {
		upgrade, ok := upgrades[int(ships[i].ID)]
		if !ok || upgrade.Msrp == 0 {
			continue
		}
		ships[i].PledgeCost = upgrade.Msrp / 100
	}
}

func (m *ShipMatrix) addModels(ctx context.Context, ships []Ship) {
	for i := range ships {
		if ships[i].URL == "" {
			continue
		}
		res, err := m.sess.Get(ctx, ships[i].URL)
		if err != nil {
			m.tel.ReportWarning(report_shipmatrix_model, ships[i].Name, err)
			continue
		}
		match := modelRegex.FindSubmatch(res.Body())
		if match == nil {
			continue
		}
		ships[i].Model3D = string(match[1])
	}
}

func (m *ShipMatrix) readSnapshot(ctx context.Context) ([]Ship, bool) {
	if m.opts.Snapshot == nil {
		return nil, false
	}
	ships, ok, err := snapshot.GetJSON[[]Ship](ctx, *m.opts.Snapshot, m.opts.SnapshotKey, m.opts.SnapshotMaxAge)
	if err != nil {
		m.tel.ReportWarning(report_shipmatrix_snapshot, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	for i := range ships {
		ships[i].Loaners = nil
	}
	return ships, true
}

func (m *ShipMatrix) writeSnapshot(ctx context.Context, ships []Ship) {
	if m.opts.Snapshot == nil {
		return
	}
	err := snapshot.PutJSON(ctx, *m.opts.Snapshot, m.opts.SnapshotKey, ships)
	if err != nil {
		m.tel.ReportWarning(report_shipmatrix_snapshot, err)
	}
}

func (m *ShipMatrix) addLoaners(ctx context.Context, ships []Ship) {
	res, err := m.support.R().SetContext(ctx).Get(m.opts.LoanerURL)
	if err == nil && !res.IsSuccess() {
		err = &rsierr.TransportError{Method: resty.MethodGet, Endpoint: m.opts.LoanerURL, Status: res.StatusCode()}
	}
	if err != nil {
		var transportErr *rsierr.TransportError
		if !errors.As(err, &transportErr) {
			err = &rsierr.TransportError{Method: resty.MethodGet, Endpoint: m.opts.LoanerURL, Err: err}
		}
		m.tel.ReportWarning(report_shipmatrix_loaners, err)
		return
	}

	lines, err := loanerLines(res.Body())
	if err != nil {
		m.tel.ReportWarning(report_shipmatrix_loaners, err)
		return
	}
	assigned := reconcileLoaners(ships, lines, m.opts.LoanerExceptions, m.tel)
	m.tel.ReportCount(report_shipmatrix_loaners, int64(assigned))
}
