package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/rsi/session"
	"gorsi/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type greetingVars struct {
	Name string `json:"name"`
}

type greetingData struct {
	Greeting struct {
		Text string `json:"text"`
	} `json:"greeting"`
}

func setup(t testing.TB, handler http.HandlerFunc) *session.Session {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := session.New(session.Config{BaseUrl: srv.URL, Telemetry: telemetry.NewRecorder()})
	require.NoError(t, err)
	return s
}

func TestQuery(t *testing.T) {
	var received []queryObject
	var path string
	s := setup(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`[{"data":{"greeting":{"text":"hello citizen"}}}]`))
	})

	data, err := Query[greetingVars, greetingData](
		context.Background(), s, "/graphql",
		"Greeting", "query Greeting($name: String) { greeting(name: $name) { text } }",
		greetingVars{Name: "citizen"},
	)
	require.NoError(t, err)
	require.Equal(t, "hello citizen", data.Greeting.Text)
	require.Equal(t, "/graphql", path)

	require.Len(t, received, 1)
	require.Equal(t, "Greeting", received[0].Name)
	require.Equal(t, map[string]any{"name": "citizen"}, received[0].Variables)
}

func TestQueryErrors(t *testing.T) {
	s := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"data":null,"errors":[{"message":"Unauthorized"},{"message":"try again"}]}]`))
	})

	_, err := Query[greetingVars, greetingData](context.Background(), s, "/graphql", "Greeting", "", greetingVars{})
	var protocolErr *rsierr.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, "Greeting: Unauthorized; try again", protocolErr.Reason)
	require.Contains(t, protocolErr.Payload, "Unauthorized")
}

func TestQueryMalformed(t *testing.T) {
	for _, body := range []string{`<html>maintenance</html>`, `[]`} {
		s := setup(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := Query[greetingVars, greetingData](context.Background(), s, "/graphql", "Greeting", "", greetingVars{})
		var protocolErr *rsierr.ProtocolError
		require.ErrorAs(t, err, &protocolErr, body)
	}
}

func TestQueryStatus(t *testing.T) {
	s := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := Query[greetingVars, greetingData](context.Background(), s, "/graphql", "Greeting", "", greetingVars{})
	var transportErr *rsierr.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusServiceUnavailable, transportErr.Status)
}
