package status

import (
	"context"
	"net/http"
	"testing"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/telemetry"
	"gorsi/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	_ "embed"
)

//go:embed testdata/systems.en.json
var systemsFixture string

//go:embed testdata/timeline.en.json
var timelineFixture string

func setup(t testing.TB) (*testutil.Site, *Client) {
	site := testutil.NewSite(t)
	site.Serve("/systems.en.json", "application/json", systemsFixture)
	site.Serve("/incidents/timeline.en.json", "application/json", timelineFixture)
	site.Serve("/systems.de.json", "text/html", "<html>not found</html>")
	site.Serve("/incidents/2024-07-21-elevated-30k.en.json", "application/json", `{"title":"Elevated 30k disconnects"}`)

	client := New(Options{BaseUrl: site.Server.URL + "/", Telemetry: telemetry.NewRecorder()})
	return site, client
}

func TestSystem(t *testing.T) {
	_, client := setup(t)

	status, err := client.System(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "disrupted", status.SummaryStatus)

	var names []string
	for _, system := range status.Systems {
		names = append(names, system.Name+":"+system.Status)
	}
	if diff := cmp.Diff([]string{"Platform:operational", "Persistent Universe:degraded"}, names); diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, status.Systems[1].UnresolvedIssues, 1)
	require.Equal(t, []string{"Persistent Universe"}, status.Systems[1].UnresolvedIssues[0].Affected)
}

func TestTimelineAndIncident(t *testing.T) {
	_, client := setup(t)

	timeline, err := client.Timeline(context.Background(), "en")
	require.NoError(t, err)
	require.Len(t, timeline["days"], 2)

	incident, err := client.Incident(context.Background(), "2024-07-21-elevated-30k", "")
	require.NoError(t, err)
	require.Equal(t, "Elevated 30k disconnects", incident["title"])

	_, err = client.Incident(context.Background(), "../secrets", "")
	var validationErr *rsierr.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestLanguageErrors(t *testing.T) {
	_, client := setup(t)

	_, err := client.System(context.Background(), "de")
	var protocolErr *rsierr.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, "/systems.de.json", protocolErr.Endpoint)

	_, err = client.System(context.Background(), "fr")
	var transportErr *rsierr.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusNotFound, transportErr.Status)

	_, err = client.System(context.Background(), "en/../x")
	var validationErr *rsierr.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
