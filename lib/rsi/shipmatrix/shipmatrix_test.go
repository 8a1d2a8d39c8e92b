package shipmatrix

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/rsi/store"
	"gorsi/lib/snapshot"
	"gorsi/lib/telemetry"
	"gorsi/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	_ "embed"
)

//go:embed testdata/shipmatrix.json
var matrixFixture string

//go:embed testdata/loaners.html
var loanersFixture string

//go:embed testdata/aurora-mr.html
var auroraFixture string

type fakePledges struct {
	ships map[int]store.Ship
	err   error
	calls int
}

func (f *fakePledges) ShipUpgrades(ctx context.Context) (map[int]store.Ship, error) {
	f.calls++
	return f.ships, f.err
}

func setup(t testing.TB) (*testutil.Site, *session.Session, *telemetry.Recorder) {
	site := testutil.NewSite(t)
	site.Serve(DefaultEndpoint, "application/json", matrixFixture)
	site.Serve("/pledge/ships/rsi-aurora/Aurora-MR", "text/html", auroraFixture)
	site.Serve("/support/loaners", "text/html", loanersFixture)
	sess, recorder := site.Session(t)
	return site, sess, recorder
}

func loanerNames(ship Ship) []string {
	var names []string
	for _, l := range ship.Loaners {
		names = append(names, l.Name)
	}
	return names
}

func TestList(t *testing.T) {
	site, sess, recorder := setup(t)
	pledges := &fakePledges{ships: map[int]store.Ship{
		1: {ID: 1, Name: "Aurora MR", Msrp: 2000},
		4: {ID: 4, Name: "Carrack", Msrp: 60000},
	}}
	matrix := New(sess, Options{
		Pledges:   pledges,
		LoanerURL: site.URL("/support/loaners"),
	})

	ships, err := matrix.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ships, 18)
	for i, s := range ships {
		require.Equal(t, session.Int(i+1), s.ID)
	}

	aurora := ships[0]
	require.Equal(t, "Aurora MR", aurora.Name)
	require.Equal(t, 20.0, aurora.PledgeCost)
	require.Equal(t, "/media/ships/aurora/aurora_mr.ctm", aurora.Model3D)
	require.Equal(t, Text("1"), aurora.CargoCapacity)
	require.Equal(t, Text("11"), aurora.Beam)
	require.Equal(t, Text("4.5"), aurora.Height)
	require.Equal(t, Text(""), aurora.AfterburnerSpeed)
	require.Equal(t, "RSI", aurora.Manufacturer.Code)
	require.Equal(t, Text("2"), ships[1].CargoCapacity)

	carrack := ships[3]
	require.Equal(t, 600.0, carrack.PledgeCost)
	require.Empty(t, carrack.Model3D)
	require.Len(t, recorder.Reports("warning", report_shipmatrix_model), 1)

	// cached
	_, err = matrix.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, site.Requests(DefaultEndpoint))
	require.Equal(t, 1, pledges.calls)

	matrix.ClearCache()
	_, err = matrix.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, site.Requests(DefaultEndpoint))
}

func TestLoaners(t *testing.T) {
	site, sess, recorder := setup(t)
	matrix := New(sess, Options{
		DisableModels: true,
		LoanerURL:     site.URL("/support/loaners"),
	})

	ships, err := matrix.List(context.Background())
	require.NoError(t, err)

	got := map[string][]string{}
	for _, s := range ships {
		if len(s.Loaners) > 0 {
			got[s.Name] = loanerNames(s)
		}
	}
	expected := map[string][]string{
		"Aurora MR":          {"Mustang Alpha"},
		"Aurora LN":          {"Mustang Alpha"},
		"Cutlass Black":      {"Dragonfly Black"},
		"Cutlass Red":        {"Dragonfly Black"},
		"P-52 Merlin":        {"M50"},
		"P-72 Archimedes":    {"M50"},
		"600i Explorer":      {"85X"},
		"Carrack":            {"Pisces C8X", "Ursa Rover"},
		"Carrack Expedition": {"Pisces C8X", "Ursa Rover"},
		"Hornet F7C":         {"Ursa Personnel"},
		"M50":                {"Aurora LN"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatal(diff)
	}

	require.Equal(t, []LoanerRef{{ID: 13, Name: "Mustang Alpha"}}, ships[0].Loaners)

	// "Nonexistent Ship" and the line without a separator
	require.Len(t, recorder.Reports("warning", report_shipmatrix_loaners), 2)
	count, ok := recorder.Count(report_shipmatrix_loaners)
	require.True(t, ok)
	require.Equal(t, int64(11), count)
}

func TestExpandLoanerLine(t *testing.T) {
	labels := []string{"Aurora MR", "Aurora LN", "600i Touring", "600i Explorer", "P-52 Merlin", "P-72 Archimedes"}

	testCases := []struct {
		line       string
		exceptions []LoanerException
		expected   []loanerEntry
	}{
		{
			line: "Aurora Variants - Aurora MR",
			expected: []loanerEntry{
				{ship: "Aurora LN", loaners: []string{"Aurora MR"}},
			},
		},
		{
			line: "600i Series - P-52 Merlin",
			expected: []loanerEntry{
				{ship: "600i Touring", loaners: []string{"P-52 Merlin"}},
				{ship: "600i Explorer", loaners: []string{"P-52 Merlin"}},
			},
		},
		{
			line:       "600i Series - P-52 Merlin",
			exceptions: DefaultLoanerExceptions,
			expected: []loanerEntry{
				{ship: "600i Explorer", loaners: []string{"P-52 Merlin"}},
			},
		},
		{
			line: "P-52, 72 - Aurora MR, Aurora LN",
			expected: []loanerEntry{
				{ship: "P-52", loaners: []string{"Aurora MR", "Aurora LN"}},
				{ship: "P-72", loaners: []string{"Aurora MR", "Aurora LN"}},
			},
		},
		{
			line: "Hornet F7C - Ursa Passenger",
			expected: []loanerEntry{
				{ship: "Hornet F7C", loaners: []string{"Ursa Personnel"}},
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.line, func(t *testing.T) {
			entries, err := expandLoanerLine(test.line, labels, test.exceptions)
			require.NoError(t, err)
			diff := cmp.Diff(test.expected, entries, cmp.AllowUnexported(loanerEntry{}))
			if diff != "" {
				t.Fatal(diff)
			}
		})
	}

	_, err := expandLoanerLine("Coming soon", labels, nil)
	require.Error(t, err)
}

func TestByIDAndSearch(t *testing.T) {
	_, sess, _ := setup(t)
	matrix := New(sess, Options{DisableModels: true, DisableLoaners: true})

	ship, err := matrix.ByID(context.Background(), 16)
	require.NoError(t, err)
	require.Equal(t, "P-52 Merlin", ship.Name)

	_, err = matrix.ByID(context.Background(), 99)
	var notFound *rsierr.NotFoundError
	require.ErrorAs(t, err, &notFound)

	results, err := matrix.SearchByName(context.Background(), "cutlas", 80, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Cutlass Black", results[0].Record.Name)
	require.Equal(t, "Cutlass Red", results[1].Record.Name)
	require.Equal(t, 90, results[0].Score)

	results, err = matrix.SearchByName(context.Background(), "Carrack", 80, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 100, results[0].Score)
	require.Equal(t, "Carrack", results[0].Record.Name)
}

func TestBestEffortEnrichment(t *testing.T) {
	_, sess, recorder := setup(t)
	matrix := New(sess, Options{
		Pledges:   &fakePledges{err: errors.New("upgrade catalog unavailable")},
		LoanerURL: sess.URL("/support/missing"),
	})

	ships, err := matrix.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ships, 18)
	for _, s := range ships {
		require.Zero(t, s.PledgeCost)
		require.Empty(t, s.Loaners)
	}
	require.Len(t, recorder.Reports("warning", report_shipmatrix_pledge), 1)
	require.Len(t, recorder.Reports("warning", report_shipmatrix_loaners), 1)
}

func TestUnexpectedMsg(t *testing.T) {
	site := testutil.NewSite(t)
	site.Serve(DefaultEndpoint, "application/json", `{"success":0,"msg":"Maintenance","data":[]}`)
	sess, recorder := site.Session(t)
	matrix := New(sess, Options{DisableModels: true, DisableLoaners: true})

	_, err := matrix.List(context.Background())
	var protocolErr *rsierr.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	require.Len(t, recorder.Reports("broken", report_shipmatrix_fetch), 1)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	site, sess, _ := setup(t)
	snapshots, err := snapshot.New(ctx, testutil.OpenSqlite(t))
	require.NoError(t, err)

	opts := Options{
		DisableModels:  true,
		DisableLoaners: true,
		Snapshot:       &snapshots,
		SnapshotMaxAge: time.Hour,
	}
	ships, err := New(sess, opts).List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, site.Requests(DefaultEndpoint))

	fromSnapshot, err := New(sess, opts).List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, site.Requests(DefaultEndpoint))
	if diff := cmp.Diff(ships, fromSnapshot); diff != "" {
		t.Fatal(diff)
	}
}
