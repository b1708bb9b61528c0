package playermodule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
)

func TestMapPathLongestPrefixWins(t *testing.T) {
	mappings := []database.PathMapping{
		{LocalPrefix: "/mnt/media", RemotePrefix: "smb://nas/media"},
		{LocalPrefix: "/mnt/media/movies", RemotePrefix: "smb://nas/movies"},
	}

	assert.Equal(t, "smb://nas/movies/Heat (1995)",
		MapPath(mappings, "/mnt/media/movies/Heat (1995)"))
	assert.Equal(t, "smb://nas/media/music/album",
		MapPath(mappings, "/mnt/media/music/album"))
}

func TestMapPathNoMatchPassesThrough(t *testing.T) {
	mappings := []database.PathMapping{
		{LocalPrefix: "/mnt/media", RemotePrefix: "smb://nas/media"},
	}
	assert.Equal(t, "/srv/other/file", MapPath(mappings, "/srv/other/file"))
}

func TestKodiClientScanAndErrors(t *testing.T) {
	var gotMethod string
	var gotDirectory string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMethod = req.Method
		if params, ok := req.Params.(map[string]interface{}); ok {
			gotDirectory, _ = params["directory"].(string)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"OK"}`))
	}))
	defer srv.Close()

	player := playerForURL(t, srv.URL)
	client := NewKodiClient(player, time.Second)

	require.NoError(t, client.ScanVideoLibrary(context.Background(), "smb://nas/movies"))
	assert.Equal(t, "VideoLibrary.Scan", gotMethod)
	assert.Equal(t, "smb://nas/movies", gotDirectory)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "JSONRPC.Ping", gotMethod)
}

func TestKodiClientUnreachableIsTransient(t *testing.T) {
	player := &database.MediaPlayer{Name: "den", Host: "127.0.0.1", Port: 1}
	client := NewKodiClient(player, 200*time.Millisecond)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
}

func TestKodiClientRPCErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"code":-32601,"message":"Method not found"}}`))
	}))
	defer srv.Close()

	client := NewKodiClient(playerForURL(t, srv.URL), time.Second)
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPermanent, apperrors.KindOf(err))
}

func playerForURL(t *testing.T, rawURL string) *database.MediaPlayer {
	t.Helper()
	trimmed := strings.TrimPrefix(rawURL, "http://")
	host, portStr, ok := strings.Cut(trimmed, ":")
	require.True(t, ok)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return &database.MediaPlayer{Name: "test", Host: host, Port: port}
}
