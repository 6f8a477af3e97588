package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"torrent-monitor/app/logger"
	"torrent-monitor/app/model"
	"torrent-monitor/app/plugin"
	"torrent-monitor/app/utils/torrentfile"
	"torrent-monitor/app/utils/torrenttest"
)

type memTopic struct {
	base model.Topic
	hash string
}

func (t *memTopic) Base() *model.Topic { return &t.base }
func (t *memTopic) GetHash() string { return t.hash }

// memTracker 内存中的 hash 检测 tracker
type memTracker struct {
	name     string
	topics   []*memTopic
	content  map[uint][]byte
	panicMsg string
	err      error
	executed int
	onRun    func()
}

func (m *memTracker) Name() string { return m.name }
func (m *memTracker) CanParseURL(string) bool { return false }
func (m *memTracker) ParseURL(string) (*plugin.ParsedURL, error) { return nil, nil }
func (m *memTracker) AddTopic(string, plugin.TopicParams) (*model.Topic, error) {
	return nil, errors.New("not supported")
}

func (m *memTracker) GetTopics(ids []uint) ([]plugin.Topic, error) {
	var out []plugin.Topic
	for _, t := range m.topics {
		if len(ids) > 0 {
			for _, id := range ids {
				if id == t.base.ID && !t.base.Paused {
					out = append(out, t)
				}
			}
			continue
		}
		if t.base.IsExecutable() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTracker) Execute(topics []plugin.Topic, engine plugin.ExecuteEngine) error {
	m.executed++
	if m.onRun != nil {
		m.onRun()
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return m.err
	}
	plugin.ExecuteWithHashChange(m, topics, engine)
	return nil
}

func (m *memTracker) DownloadTorrent(topic plugin.HashTopic) (*plugin.Download, error) {
	return &plugin.Download{Content: m.content[topic.Base().ID]}, nil
}

func (m *memTracker) SaveTopic(topic plugin.HashTopic, update plugin.TopicUpdate) error {
	t := topic.(*memTopic)
	if update.Hash != nil {
		t.hash = *update.Hash
	}
	if update.LastUpdate != nil {
		t.base.LastUpdate = update.LastUpdate
	}
	if update.Status != "" {
		t.base.Status = update.Status
	}
	return nil
}

// credTracker 需要登录的 tracker
type credTracker struct {
	memTracker
	verify bool
	login  plugin.LoginResult
	inited plugin.TrackerSettings
}

func (c *credTracker) Login() plugin.LoginResult { return c.login }
func (c *credTracker) Verify() bool { return c.verify }
func (c *credTracker) GetCredentials() (*model.TrackerCredentials, error) {
	return nil, nil
}
func (c *credTracker) UpdateCredentials(string, string) error { return nil }
func (c *credTracker) Init(settings plugin.TrackerSettings) { c.inited = settings }

// fakeClient 内存中的下载客户端
type fakeClient struct {
	mu       sync.Mutex
	torrents map[string]plugin.TorrentInfo
	adds     int
	removes  []string
	added    time.Time
}

func newFakeClient(added time.Time) *fakeClient {
	return &fakeClient{torrents: map[string]plugin.TorrentInfo{}, added: added}
}

func (c *fakeClient) FindTorrent(hash string) (*plugin.TorrentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.torrents[hash]; ok {
		return &info, nil
	}
	return nil, nil
}

func (c *fakeClient) AddTorrent(content []byte, _ plugin.TopicSettings) (bool, error) {
	torrent, err := torrentfile.Parse(content)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adds++
	c.torrents[torrent.InfoHash] = plugin.TorrentInfo{Name: torrent.Name, Hash: torrent.InfoHash, DateAdded: c.added}
	return true, nil
}

func (c *fakeClient) RemoveTorrent(hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes = append(c.removes, hash)
	delete(c.torrents, hash)
	return true, nil
}

type engineFixture struct {
	db      *gorm.DB
	manager *ExecuteLogManager
	client  *fakeClient
	engine  *Engine
}

func newEngineFixture(t *testing.T, trackers ...plugin.Tracker) *engineFixture {
	t.Helper()
	db := openTestDB(t)
	registry := plugin.NewRegistry()
	for _, tracker := range trackers {
		require.NoError(t, registry.RegisterTracker(tracker))
	}
	manager := NewExecuteLogManager(db)
	client := newFakeClient(baseTime.Add(time.Hour))
	settings := plugin.TrackerSettings{RequestsTimeout: 7 * time.Second}
	e := New(registry, client, NewDBLogger(manager, logger.NewNop()), settings, logger.NewNop())
	return &engineFixture{db: db, manager: manager, client: client, engine: e}
}

func (f *engineFixture) lastExecute(t *testing.T) (model.Execute, []model.ExecuteLog) {
	t.Helper()
	var execute model.Execute
	require.NoError(t, f.db.Order("id DESC").First(&execute).Error)
	logs, err := f.manager.GetExecuteLogDetails(execute.ID, 0)
	require.NoError(t, err)
	return execute, logs
}

func hashTopic(id uint, name string, hash string, lastUpdate time.Time) *memTopic {
	return &memTopic{
		base: model.Topic{ID: id, DisplayName: name, URL: "http://tracker/" + name, Status: model.TopicStatusOk, LastUpdate: &lastUpdate},
		hash: hash,
	}
}

func messagesWithLevel(logs []model.ExecuteLog, level model.LogLevel) []string {
	var out []string
	for _, l := range logs {
		if l.Level == level {
			out = append(out, l.Message)
		}
	}
	return out
}

func TestExecuteUnchangedHashDoesNotAddTorrent(t *testing.T) {
	topic := hashTopic(1, "show", torrenttest.Hash("v1"), baseTime)
	tracker := &memTracker{name: "mem", topics: []*memTopic{topic}, content: map[uint][]byte{1: torrenttest.New("v1")}}
	f := newEngineFixture(t, tracker)

	require.NoError(t, f.engine.Execute(nil))

	assert.Zero(t, f.client.adds)
	assert.Equal(t, torrenttest.Hash("v1"), topic.hash)
	require.NotNil(t, topic.base.LastUpdate)
	assert.True(t, baseTime.Equal(*topic.base.LastUpdate))

	execute, logs := f.lastExecute(t)
	assert.Equal(t, model.ExecuteStatusFinished, execute.Status)
	assert.Empty(t, messagesWithLevel(logs, model.LogLevelDownloaded))
	assert.False(t, f.manager.IsRunning(0))
}

func TestExecuteChangedHashAddsOnceAndRemovesOld(t *testing.T) {
	topic := hashTopic(1, "show", torrenttest.Hash("v1"), baseTime)
	tracker := &memTracker{name: "mem", topics: []*memTopic{topic}, content: map[uint][]byte{1: torrenttest.New("v2")}}
	f := newEngineFixture(t, tracker)
	f.client.torrents[torrenttest.Hash("v1")] = plugin.TorrentInfo{Name: "v1", Hash: torrenttest.Hash("v1"), DateAdded: baseTime}

	require.NoError(t, f.engine.Execute(nil))

	assert.Equal(t, 1, f.client.adds)
	assert.Equal(t, []string{torrenttest.Hash("v1")}, f.client.removes)
	assert.Equal(t, torrenttest.Hash("v2"), topic.hash)
	require.NotNil(t, topic.base.LastUpdate)
	assert.True(t, baseTime.Add(time.Hour).Equal(*topic.base.LastUpdate))

	_, logs := f.lastExecute(t)
	assert.Len(t, messagesWithLevel(logs, model.LogLevelDownloaded), 1)
	assert.Empty(t, messagesWithLevel(logs, model.LogLevelFailed))

	// 再次执行内容不变，不再添加
	require.NoError(t, f.engine.Execute(nil))
	assert.Equal(t, 1, f.client.adds)
}

func TestExecuteTorrentAlreadyInClient(t *testing.T) {
	topic := hashTopic(1, "show", "", baseTime)
	tracker := &memTracker{name: "mem", topics: []*memTopic{topic}, content: map[uint][]byte{1: torrenttest.New("v1")}}
	f := newEngineFixture(t, tracker)
	existing := baseTime.Add(-time.Hour)
	f.client.torrents[torrenttest.Hash("v1")] = plugin.TorrentInfo{Hash: torrenttest.Hash("v1"), DateAdded: existing}

	require.NoError(t, f.engine.Execute(nil))

	assert.Zero(t, f.client.adds)
	assert.Equal(t, torrenttest.Hash("v1"), topic.hash)
	assert.True(t, existing.Equal(*topic.base.LastUpdate))
}

func TestExecuteWithoutTopicsCreatesNoRun(t *testing.T) {
	paused := hashTopic(1, "paused", "", baseTime)
	paused.base.Paused = true
	tracker := &memTracker{name: "mem", topics: []*memTopic{paused}}
	f := newEngineFixture(t, tracker)

	require.NoError(t, f.engine.Execute(nil))

	var count int64
	require.NoError(t, f.db.Model(&model.Execute{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, tracker.executed)
}

func TestTrackerFailureDoesNotAbortRun(t *testing.T) {
	broken := &memTracker{name: "broken", panicMsg: "scraper crashed",
		topics: []*memTopic{hashTopic(1, "a", "", baseTime)}}
	failing := &memTracker{name: "failing", err: errors.New("site down"),
		topics: []*memTopic{hashTopic(2, "b", "", baseTime)}}
	good := &memTracker{name: "good",
		topics:  []*memTopic{hashTopic(3, "c", "", baseTime)},
		content: map[uint][]byte{3: torrenttest.New("c")}}
	f := newEngineFixture(t, broken, failing, good)

	require.NoError(t, f.engine.Execute(nil))

	assert.Equal(t, 1, f.client.adds)
	execute, logs := f.lastExecute(t)
	assert.Equal(t, model.ExecuteStatusFinished, execute.Status)

	failed := messagesWithLevel(logs, model.LogLevelFailed)
	require.Len(t, failed, 2)
	assert.Contains(t, failed[0], "broken")
	assert.Contains(t, failed[0], "scraper crashed")
	assert.Contains(t, failed[1], "failing")
	assert.Contains(t, failed[1], "site down")
}

func TestTopicPausedDuringRunIsSkipped(t *testing.T) {
	later := hashTopic(2, "b", "", baseTime)
	second := &memTracker{name: "second", topics: []*memTopic{later},
		content: map[uint][]byte{2: torrenttest.New("b")}}
	first := &memTracker{name: "first",
		topics:  []*memTopic{hashTopic(1, "a", "", baseTime)},
		content: map[uint][]byte{1: torrenttest.New("a")},
		onRun:   func() { later.base.Paused = true }}
	f := newEngineFixture(t, first, second)

	require.NoError(t, f.engine.Execute(nil))

	assert.Equal(t, 1, first.executed)
	assert.Zero(t, second.executed)
	assert.Equal(t, 1, f.client.adds)
	assert.Empty(t, later.hash)
}

func TestExecuteRestrictedToIDs(t *testing.T) {
	errored := hashTopic(2, "b", "", baseTime)
	errored.base.Status = model.TopicStatusNotFound
	tracker := &memTracker{name: "mem",
		topics:  []*memTopic{hashTopic(1, "a", "", baseTime), errored},
		content: map[uint][]byte{1: torrenttest.New("a"), 2: torrenttest.New("b")}}
	f := newEngineFixture(t, tracker)

	require.NoError(t, f.engine.Execute([]uint{2}))

	assert.Equal(t, 1, f.client.adds)
	assert.Equal(t, torrenttest.Hash("b"), errored.hash)
	assert.Empty(t, tracker.topics[0].hash)
}

func TestLoginFlow(t *testing.T) {
	cases := []struct {
		name     string
		verify   bool
		login    plugin.LoginResult
		executed bool
		failed   bool
	}{
		{"valid session", true, plugin.LoginUnknown, true, false},
		{"relogin ok", false, plugin.LoginOk, true, false},
		{"no credentials", false, plugin.LoginCredentialsNotSpecified, false, false},
		{"wrong password", false, plugin.LoginIncorrectLoginPassword, false, true},
		{"service down", false, plugin.LoginServiceUnavailable, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := &credTracker{
				memTracker: memTracker{name: "cred",
					topics:  []*memTopic{hashTopic(1, "a", "", baseTime)},
					content: map[uint][]byte{1: torrenttest.New("a")}},
				verify: tc.verify,
				login:  tc.login,
			}
			f := newEngineFixture(t, tracker)

			require.NoError(t, f.engine.Execute(nil))

			assert.Equal(t, 7*time.Second, tracker.inited.RequestsTimeout)
			assert.Equal(t, tc.executed, tracker.executed == 1)
			_, logs := f.lastExecute(t)
			failed := messagesWithLevel(logs, model.LogLevelFailed)
			if tc.failed {
				require.Len(t, failed, 1)
				assert.True(t, strings.Contains(failed[0], tc.login.String()), failed[0])
			} else {
				assert.Empty(t, failed)
			}
		})
	}
}

func TestStatusChangeIsLogged(t *testing.T) {
	topic := hashTopic(1, "show", "", baseTime)
	topic.base.Status = model.TopicStatusError
	tracker := &memTracker{name: "mem", topics: []*memTopic{topic}, content: map[uint][]byte{1: torrenttest.New("v1")}}
	f := newEngineFixture(t, tracker)

	require.NoError(t, f.engine.Execute(nil))

	assert.Equal(t, model.TopicStatusOk, topic.base.Status)
	_, logs := f.lastExecute(t)
	var found bool
	for _, l := range messagesWithLevel(logs, model.LogLevelInfo) {
		if strings.Contains(l, "error → ok") {
			found = true
		}
	}
	assert.True(t, found)
}
