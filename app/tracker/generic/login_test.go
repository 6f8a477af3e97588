package generic

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"torrent-monitor/app/database"
	"torrent-monitor/app/engine"
	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/utils/torrentfile"
	"torrent-monitor/app/utils/torrenttest"
)

// loginSite /login 要求 Basic 认证并下发 sid，/private.torrent 要求 sid
func loginSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			if cookie, err := r.Cookie("sid"); err == nil && cookie.Value == "s1" {
				return
			}
			user, pass, ok := r.BasicAuth()
			if !ok || user != "user" || pass != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1"})
		case "/private.torrent":
			if cookie, err := r.Cookie("sid"); err != nil || cookie.Value != "s1" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/x-bittorrent")
			_, _ = w.Write(torrenttest.New("private"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openLoginDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "login.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newLoginTracker(t *testing.T, db *gorm.DB, loginURL string) *Tracker {
	t.Helper()
	tracker := New(db, logger.NewNop(), WithLoginURL(loginURL))
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func TestAnonymousWithoutCredentials(t *testing.T) {
	srv := loginSite(t)
	tracker := newLoginTracker(t, openLoginDB(t), srv.URL+"/login")

	assert.True(t, tracker.Verify())
	assert.Equal(t, plugin.LoginCredentialsNotSpecified, tracker.Login())

	creds, err := tracker.GetCredentials()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestLoginPersistsSessionCookies(t *testing.T) {
	srv := loginSite(t)
	db := openLoginDB(t)
	tracker := newLoginTracker(t, db, srv.URL+"/login")

	require.NoError(t, tracker.UpdateCredentials("user", "wrong"))
	assert.False(t, tracker.Verify())
	assert.Equal(t, plugin.LoginIncorrectLoginPassword, tracker.Login())

	require.NoError(t, tracker.UpdateCredentials("user", "pass"))
	assert.False(t, tracker.Verify())
	require.Equal(t, plugin.LoginOk, tracker.Login())

	creds, err := tracker.GetCredentials()
	require.NoError(t, err)
	assert.Equal(t, "sid=s1", creds.Cookies)

	res, err := tracker.get(srv.URL + "/private.torrent")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// 新进程从数据库恢复会话，无需重新登录
	restarted := newLoginTracker(t, db, srv.URL+"/login")
	assert.True(t, restarted.Verify())
	res, err = restarted.get(srv.URL + "/private.torrent")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// 修改凭据后旧会话作废
	require.NoError(t, restarted.UpdateCredentials("user", "pass"))
	creds, err = restarted.GetCredentials()
	require.NoError(t, err)
	assert.Empty(t, creds.Cookies)
	assert.Nil(t, restarted.authFor(srv.URL+"/private.torrent"))
}

func TestSessionOnlySentToLoginHost(t *testing.T) {
	srv := loginSite(t)
	tracker := newLoginTracker(t, openLoginDB(t), srv.URL+"/login")
	require.NoError(t, tracker.UpdateCredentials("user", "pass"))
	require.Equal(t, plugin.LoginOk, tracker.Login())

	assert.NotNil(t, tracker.authFor(srv.URL+"/anything"))
	assert.Nil(t, tracker.authFor("http://other.example/anything"))
}

func TestLoginServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	tracker := newLoginTracker(t, openLoginDB(t), srv.URL+"/login")
	require.NoError(t, tracker.UpdateCredentials("user", "pass"))

	assert.Equal(t, plugin.LoginServiceUnavailable, tracker.Login())
}

// memClient 只记录添加过的 hash
type memClient struct {
	mu     sync.Mutex
	hashes map[string]time.Time
}

func (c *memClient) FindTorrent(hash string) (*plugin.TorrentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if added, ok := c.hashes[hash]; ok {
		return &plugin.TorrentInfo{Hash: hash, DateAdded: added}, nil
	}
	return nil, nil
}

func (c *memClient) AddTorrent(content []byte, _ plugin.TopicSettings) (bool, error) {
	torrent, err := torrentfile.Parse(content)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[torrent.InfoHash] = time.Now().UTC()
	return true, nil
}

func (c *memClient) RemoveTorrent(string) (bool, error) { return true, nil }

func TestEngineReloginRefreshesStoredSession(t *testing.T) {
	srv := loginSite(t)
	db := openLoginDB(t)

	first := newLoginTracker(t, db, srv.URL+"/login")
	registry := plugin.NewRegistry()
	require.NoError(t, registry.RegisterTracker(first))
	require.NoError(t, database.UpgradePlugins(db, registry, logger.NewNop()))
	require.NoError(t, first.UpdateCredentials("user", "pass"))
	require.Equal(t, plugin.LoginOk, first.Login())
	topic, err := first.AddTopic(srv.URL+"/private.torrent", plugin.TopicParams{DisplayName: "private"})
	require.NoError(t, err)

	// 会话过期
	require.NoError(t, db.Model(&model.TrackerCredentials{}).Where("tracker = ?", Name).Update("cookies", "").Error)

	tracker := newLoginTracker(t, db, srv.URL+"/login")
	registry = plugin.NewRegistry()
	require.NoError(t, registry.RegisterTracker(tracker))
	logs := engine.NewExecuteLogManager(db)
	client := &memClient{hashes: map[string]time.Time{}}
	eng := engine.New(registry, client, engine.NewDBLogger(logs, logger.NewNop()), plugin.TrackerSettings{RequestsTimeout: time.Second}, logger.NewNop())

	require.NoError(t, eng.Execute([]uint{topic.ID}))

	creds, err := tracker.GetCredentials()
	require.NoError(t, err)
	assert.Equal(t, "sid=s1", creds.Cookies)
	assert.Len(t, client.hashes, 1)

	var row Topic
	require.NoError(t, db.First(&row, topic.ID).Error)
	assert.Equal(t, torrenttest.Hash("private"), row.Hash)
}
