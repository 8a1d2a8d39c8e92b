package launcher

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/testutil"

	"github.com/stretchr/testify/require"
)

func envelope(data any) string {
	buff, _ := json.Marshal(map[string]any{"success": 1, "code": "OK", "msg": "OK", "data": data})
	return string(buff)
}

func setup(t testing.TB, signedIn bool) (*testutil.Site, *Launcher) {
	site := testutil.NewSite(t)
	site.Handle("/api/contacts/list", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(envelope(map[string]any{})))
	})
	endpoints := DefaultEndpoints()
	site.Serve(endpoints.Claims, "application/json", envelope("claims-token"))
	site.Serve(endpoints.Library, "application/json", envelope(map[string]any{
		"games": []map[string]any{{"id": "SC", "name": "Star Citizen"}},
	}))
	site.Serve(endpoints.Release, "application/json", envelope(map[string]any{"version": "3.24.1"}))
	site.Serve(endpoints.News, "application/json", envelope([]map[string]any{{"title": "Alpha 3.24"}}))
	site.Serve(endpoints.PatchNotes, "application/json", `{"success":0,"code":"ErrNoPatchNotes","msg":"none","data":null}`)

	sess, _ := site.Session(t)
	return site, New(sess, Options{})
}

func TestRequiresAuthentication(t *testing.T) {
	site, launcher := setup(t, false)

	_, err := launcher.Claims(context.Background())
	var authErr *rsierr.AuthenticationError
	require.ErrorAs(t, err, &authErr)

	_, err = launcher.Library(context.Background())
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 0, site.Requests(DefaultEndpoints().Claims))
}

func TestClaimsAndLibrary(t *testing.T) {
	site, launcher := setup(t, true)
	endpoints := DefaultEndpoints()

	claims, err := launcher.Claims(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `"claims-token"`, string(claims))

	library, err := launcher.Library(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"games":[{"id":"SC","name":"Star Citizen"}]}`, string(library))
	require.Len(t, site.Bodies(endpoints.Library), 1)
	require.JSONEq(t, `{"claims":"claims-token"}`, site.Bodies(endpoints.Library)[0])

	release, err := launcher.Release(context.Background(), "", "PTU")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"3.24.1"}`, string(release))
	require.JSONEq(t, `{"claims":"claims-token","gameId":"SC","channelId":"PTU"}`, site.Bodies(endpoints.Release)[0])

	// claims and library are cached
	_, err = launcher.Library(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, site.Requests(endpoints.Claims))
	require.Equal(t, 1, site.Requests(endpoints.Library))

	launcher.ClearCache()
	_, err = launcher.Claims(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, site.Requests(endpoints.Claims))
}

func TestContent(t *testing.T) {
	site, launcher := setup(t, false)
	endpoints := DefaultEndpoints()

	news, err := launcher.News(context.Background(), "")
	require.NoError(t, err)
	require.JSONEq(t, `[{"title":"Alpha 3.24"}]`, string(news))
	require.JSONEq(t, `{"game_id":"SC"}`, site.Bodies(endpoints.News)[0])

	_, err = launcher.PatchNotes(context.Background(), "SC", "")
	var protocolErr *rsierr.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	require.Contains(t, protocolErr.Reason, "ErrNoPatchNotes")
	require.JSONEq(t, `{"game_id":"SC","channel_id":"LIVE"}`, site.Bodies(endpoints.PatchNotes)[0])
}
