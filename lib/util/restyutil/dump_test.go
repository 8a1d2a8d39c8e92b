package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mu       sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id string, contents string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages[id] = contents
}

func TestDump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "Rsi-Token", Value: "secret"})
		w.Write([]byte(`{"success":1}`))
	}))
	defer server.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	Dump(client, output, "x-rsi-token")

	_, err := client.R().
		SetHeader("X-Rsi-Token", "secret").
		SetBody(map[string]string{"search": "Venture"}).
		Post(server.URL + "/api/orgs/getOrgMembers")
	require.NoError(t, err)
	_, err = client.R().Get(server.URL + "/orgs/PROTEUS")
	require.NoError(t, err)

	require.Len(t, output.messages, 2)
	message := output.messages["1"]
	require.Contains(t, message, "POST "+server.URL+"/api/orgs/getOrgMembers")
	require.Contains(t, message, `{"search":"Venture"}`)
	require.Contains(t, message, "X-Rsi-Token: <redacted>")
	require.Contains(t, message, "Set-Cookie: <redacted>")
	require.Contains(t, message, `{"success":1}`)
	require.NotContains(t, message, "secret")
	require.Contains(t, output.messages["2"], "GET "+server.URL+"/orgs/PROTEUS")
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("old"), 0600))

	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	output.Write("1", "message")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "message", string(contents))
}
