package transmission

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-monitor/app/database"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/plugin"
)

type fakeTransmission struct {
	mu        sync.Mutex
	torrents  map[string]torrentFields
	added     [][]byte
	dirs      []string
	handshake int
}

func (f *fakeTransmission) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(sessionHeader) != "session-1" {
		f.mu.Lock()
		f.handshake++
		f.mu.Unlock()
		w.Header().Set(sessionHeader, "session-1")
		w.WriteHeader(http.StatusConflict)
		return
	}
	if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req struct {
		Method    string         `json:"method"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	f.mu.Lock()
	defer f.mu.Unlock()
	args := map[string]any{}
	switch req.Method {
	case "session-get":
		args["version"] = "4.0.0"
	case "torrent-get":
		var list []torrentFields
		for _, id := range req.Arguments["ids"].([]any) {
			if t, ok := f.torrents[id.(string)]; ok {
				list = append(list, t)
			}
		}
		args["torrents"] = list
	case "torrent-add":
		raw, _ := base64.StdEncoding.DecodeString(req.Arguments["metainfo"].(string))
		f.added = append(f.added, raw)
		if dir, ok := req.Arguments["download-dir"].(string); ok {
			f.dirs = append(f.dirs, dir)
		}
		t := torrentFields{HashString: "newhash", Name: "new", AddedDate: 1700000000}
		f.torrents[t.HashString] = t
		args["torrent-added"] = t
	case "torrent-remove":
		for _, id := range req.Arguments["ids"].([]any) {
			delete(f.torrents, id.(string))
		}
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "method name not recognized"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": args})
}

func setup(t *testing.T) (*Client, *fakeTransmission) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "transmission.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	fake := &fakeTransmission{torrents: map[string]torrentFields{
		"oldhash": {HashString: "OLDHASH", Name: "old", AddedDate: 1600000000},
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := New(db, logger.NewNop(), 5*time.Second)
	t.Cleanup(func() { _ = client.Close() })

	payload, err := json.Marshal(SettingsPayload{
		Host:     u.Hostname(),
		Port:     port,
		Path:     "/transmission/rpc",
		Username: "admin",
		Password: "secret",
	})
	require.NoError(t, err)
	require.NoError(t, client.UpdateSettings(payload))
	return client, fake
}

func TestNotConfigured(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	defer database.Close(db)

	client := New(db, logger.NewNop(), time.Second)
	assert.False(t, client.Check())
	_, err = client.FindTorrent("abc")
	assert.ErrorIs(t, err, ErrNotConfigured)

	settings, err := client.Settings()
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestSessionHandshakeAndCheck(t *testing.T) {
	client, fake := setup(t)

	assert.True(t, client.Check())
	assert.True(t, client.Check())
	assert.Equal(t, 1, fake.handshake)
}

func TestFindAddRemove(t *testing.T) {
	client, fake := setup(t)

	info, err := client.FindTorrent("oldhash")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "oldhash", info.Hash)
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), info.DateAdded)

	missing, err := client.FindTorrent("nothere")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dir := "/downloads/shows"
	ok, err := client.AddTorrent([]byte("d4:infoe"), plugin.TopicSettings{DownloadDir: &dir})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("d4:infoe")}, fake.added)
	assert.Equal(t, []string{dir}, fake.dirs)

	ok, err = client.RemoveTorrent("oldhash")
	require.NoError(t, err)
	assert.True(t, ok)
	info, err = client.FindTorrent("oldhash")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestUpdateSettingsKeepsPassword(t *testing.T) {
	client, _ := setup(t)

	payload := []byte(`{"host":"127.0.0.1","port":9091,"username":"admin"}`)
	require.NoError(t, client.UpdateSettings(payload))

	creds, err := client.credentials()
	require.NoError(t, err)
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, "/transmission/rpc", creds.Path)

	assert.ErrorIs(t, client.UpdateSettings([]byte(`{"host":""}`)), plugin.ErrInvalidSettings)
	assert.ErrorIs(t, client.UpdateSettings([]byte(`{"host":"127.0.0.1","port":70000}`)), plugin.ErrInvalidSettings)
	assert.ErrorIs(t, client.UpdateSettings([]byte(`not json`)), plugin.ErrInvalidSettings)
}
