package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
	"github.com/pagetrail/internal/ident"
	"github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/store"
	"github.com/pagetrail/internal/token"
	"gorm.io/gorm"
)

const (
	testWebsiteID = "6f1b4c1e-8a8b-4b8e-9d55-6d1f0b6f7a10"
	testIP        = "203.0.113.7"
	testUA        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func setupSessionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func seedWebsite(t *testing.T, gdb *gorm.DB, id string, deleted bool) {
	t.Helper()

	site := db.Website{ID: id, Name: "example", Domain: "example.com"}
	if deleted {
		now := gdb.NowFunc()
		site.DeletedAt = &now
	}
	if err := gdb.Create(&site).Error; err != nil {
		t.Fatalf("failed to seed website: %v", err)
	}
}

// countingStore 记录每类存储调用的次数。
type countingStore struct {
	inner         sessionStore
	websiteCalls  atomic.Int32
	getCalls      atomic.Int32
	createCalls   atomic.Int32
	createResults []store.CreateResult
	mu            sync.Mutex
}

func (c *countingStore) GetWebsite(ctx context.Context, id string) (*db.Website, error) {
	c.websiteCalls.Add(1)
	return c.inner.GetWebsite(ctx, id)
}

func (c *countingStore) GetSession(ctx context.Context, id string) (*db.Session, error) {
	c.getCalls.Add(1)
	return c.inner.GetSession(ctx, id)
}

func (c *countingStore) CreateSession(ctx context.Context, session *db.Session) (store.CreateResult, error) {
	c.createCalls.Add(1)
	result, err := c.inner.CreateSession(ctx, session)
	c.mu.Lock()
	c.createResults = append(c.createResults, result)
	c.mu.Unlock()
	return result, err
}

func (c *countingStore) total() int32 {
	return c.websiteCalls.Load() + c.getCalls.Load() + c.createCalls.Load()
}

func newCollectRequest(headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/send", nil)
	req.RemoteAddr = testIP + ":51234"
	req.Header.Set("User-Agent", testUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func collectBody(websiteID string) *detect.CollectBody {
	return &detect.CollectBody{
		Type: "event",
		Payload: &detect.Payload{
			Website:  websiteID,
			Hostname: "example.com",
			Screen:   "1920x1080",
			Language: "en-US",
			URL:      "/pricing",
		},
	}
}

func newTestSessionService(t *testing.T, st sessionStore, opts SessionOptions) (*SessionService, *token.Codec) {
	t.Helper()

	detector, err := detect.NewDetector("")
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}
	codec := token.NewCodec("test-secret", 0)
	return NewSessionService(st, nil, codec, detector, opts, logger.Discard()), codec
}

func TestFindSessionCreatesNewSession(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{})

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}

	wantID := ident.UUID("", testWebsiteID, "example.com", testIP, testUA)
	if session.ID != wantID {
		t.Fatalf("expected id %s, got %s", wantID, session.ID)
	}
	if session.WebsiteID != testWebsiteID || session.Hostname != "example.com" || session.Screen != "1920x1080" || session.Language != "en-US" {
		t.Fatalf("payload fields not carried over: %+v", session)
	}
	if session.Browser != "Chrome" || session.Device != "desktop" {
		t.Fatalf("client info not carried over: %+v", session)
	}

	var stored db.Session
	if err := gdb.First(&stored, "id = ?", wantID).Error; err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if st.createCalls.Load() != 1 {
		t.Fatalf("expected 1 create call, got %d", st.createCalls.Load())
	}
}

func TestFindSessionTruncatesClientFields(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	svc, _ := newTestSessionService(t, store.New(gdb), SessionOptions{})

	longHost := strings.Repeat("h", 150) + ".example.com"
	body := collectBody(testWebsiteID)
	body.Payload.Hostname = longHost
	body.Payload.Language = strings.Repeat("l", 60)
	body.Payload.Screen = "1920x1080-extra-wide"

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), body)
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if len(session.Hostname) != hostnameMaxLength || len(session.Language) != languageMaxLength || len(session.Screen) != screenMaxLength {
		t.Fatalf("expected truncated fields, got hostname=%d language=%d screen=%d", len(session.Hostname), len(session.Language), len(session.Screen))
	}
	if want := ident.UUID("", testWebsiteID, longHost, testIP, testUA); session.ID != want {
		t.Fatalf("id should derive from the untruncated hostname, got %s want %s", session.ID, want)
	}

	var stored db.Session
	if err := gdb.First(&stored, "id = ?", session.ID).Error; err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if stored.Hostname != session.Hostname {
		t.Fatalf("stored hostname mismatch: %q", stored.Hostname)
	}
}

func TestFindSessionReusesExistingSession(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{})
	ctx := context.Background()

	first, err := svc.FindSession(ctx, newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("first FindSession failed: %v", err)
	}

	body := collectBody(testWebsiteID)
	body.Payload.Screen = "800x600"
	second, err := svc.FindSession(ctx, newCollectRequest(nil), body)
	if err != nil {
		t.Fatalf("second FindSession failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same session id, got %s and %s", first.ID, second.ID)
	}
	if second.Screen != "1920x1080" {
		t.Fatalf("expected stored session to be returned, got screen %q", second.Screen)
	}
	if st.createCalls.Load() != 1 {
		t.Fatalf("expected a single create, got %d", st.createCalls.Load())
	}
}

func TestFindSessionWithoutPayload(t *testing.T) {
	st := &countingStore{}
	svc, _ := newTestSessionService(t, st, SessionOptions{})

	for name, body := range map[string]*detect.CollectBody{
		"nil body":    nil,
		"nil payload": {Type: "event"},
	} {
		session, err := svc.FindSession(context.Background(), newCollectRequest(nil), body)
		if err != nil || session != nil {
			t.Fatalf("%s: expected nil, nil; got %+v, %v", name, session, err)
		}
	}
	if st.total() != 0 {
		t.Fatalf("expected no storage calls, got %d", st.total())
	}
}

func TestFindSessionMalformedWebsiteID(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	undashed := strings.ReplaceAll(testWebsiteID, "-", "")

	for _, id := range []string{"not-a-uuid", "{" + testWebsiteID + "}", "urn:uuid:" + testWebsiteID, undashed} {
		st := &countingStore{inner: store.New(gdb)}
		svc, _ := newTestSessionService(t, st, SessionOptions{})

		session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(id))
		if err != nil {
			t.Fatalf("malformed id %q must not raise, got %v", id, err)
		}
		if session != nil {
			t.Fatalf("expected nil session for %q, got %+v", id, session)
		}
		if st.total() != 0 {
			t.Fatalf("expected no storage calls for %q, got %d", id, st.total())
		}
	}
}

func TestFindSessionWebsiteNotFound(t *testing.T) {
	tests := []struct {
		name    string
		seed    bool
		deleted bool
	}{
		{name: "missing"},
		{name: "soft deleted", seed: true, deleted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gdb := setupSessionTestDB(t)
			if tt.seed {
				seedWebsite(t, gdb, testWebsiteID, tt.deleted)
			}
			st := &countingStore{inner: store.New(gdb)}
			svc, _ := newTestSessionService(t, st, SessionOptions{})

			session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
			if !errors.Is(err, ErrWebsiteNotFound) {
				t.Fatalf("expected ErrWebsiteNotFound, got %v", err)
			}
			if session != nil {
				t.Fatalf("expected nil session, got %+v", session)
			}
			if st.getCalls.Load() != 0 || st.createCalls.Load() != 0 {
				t.Fatal("session lookup must not run for a missing website")
			}
		})
	}
}

func TestFindSessionCacheTokenShortCircuits(t *testing.T) {
	st := &countingStore{}
	svc, codec := newTestSessionService(t, st, SessionOptions{})

	cached := &db.Session{ID: "0b7e6a4e-1d1f-4e0c-9b5a-1f2f3e4d5c6b", WebsiteID: testWebsiteID, Hostname: "cached.example.com"}
	raw, err := codec.Issue(cached)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	session, err := svc.FindSession(context.Background(), newCollectRequest(map[string]string{token.HeaderName: raw}), collectBody("not-even-validated"))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if session == nil || session.ID != cached.ID || session.Hostname != "cached.example.com" {
		t.Fatalf("expected token session, got %+v", session)
	}
	if st.total() != 0 {
		t.Fatalf("expected no storage calls, got %d", st.total())
	}
}

func TestFindSessionInvalidTokenFallsThrough(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{})

	forged, err := token.NewCodec("someone-else", 0).Issue(&db.Session{ID: "0b7e6a4e-1d1f-4e0c-9b5a-1f2f3e4d5c6b"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	session, err := svc.FindSession(context.Background(), newCollectRequest(map[string]string{token.HeaderName: forged}), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if session == nil || session.ID != ident.UUID("", testWebsiteID, "example.com", testIP, testUA) {
		t.Fatalf("expected fully resolved session, got %+v", session)
	}
	if st.websiteCalls.Load() != 1 {
		t.Fatalf("expected website lookup, got %d calls", st.websiteCalls.Load())
	}
}

func TestFindSessionColumnarBypassesPersistence(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{ColumnarEnabled: true})

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if session == nil || session.ID != ident.UUID("", testWebsiteID, "example.com", testIP, testUA) {
		t.Fatalf("unexpected computed session: %+v", session)
	}
	if st.getCalls.Load() != 0 || st.createCalls.Load() != 0 {
		t.Fatalf("columnar mode must not touch sessions: get=%d create=%d", st.getCalls.Load(), st.createCalls.Load())
	}

	var count int64
	gdb.Model(&db.Session{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no persisted sessions, got %d", count)
	}
}

func TestFindSessionConcurrentRequestsPersistOnce(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{})

	const workers = 6
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
			errs[i] = err
			if session != nil {
				ids[i] = session.ID
			}
		}(i)
	}
	wg.Wait()

	want := ident.UUID("", testWebsiteID, "example.com", testIP, testUA)
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if ids[i] != want {
			t.Fatalf("worker %d got id %q", i, ids[i])
		}
	}

	var count int64
	gdb.Model(&db.Session{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one persisted session, got %d", count)
	}

	created := 0
	for _, r := range st.createResults {
		if r == store.Created {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected one Created outcome, got %d (%v)", created, st.createResults)
	}
}

// raceStore 模拟并发请求抢先写入：首次查询未命中，创建返回 AlreadyExists。
type raceStore struct {
	winner    *db.Session
	winnerErr error
	createErr error
	gets      int
}

func (r *raceStore) GetWebsite(context.Context, string) (*db.Website, error) {
	return &db.Website{ID: testWebsiteID}, nil
}

func (r *raceStore) GetSession(context.Context, string) (*db.Session, error) {
	r.gets++
	if r.gets == 1 {
		return nil, nil
	}
	return r.winner, r.winnerErr
}

func (r *raceStore) CreateSession(context.Context, *db.Session) (store.CreateResult, error) {
	if r.createErr != nil {
		return 0, r.createErr
	}
	return store.AlreadyExists, nil
}

func TestFindSessionLostRaceReturnsWinner(t *testing.T) {
	winner := &db.Session{ID: ident.UUID("", testWebsiteID, "example.com", testIP, testUA), WebsiteID: testWebsiteID, Screen: "2560x1440"}
	svc, _ := newTestSessionService(t, &raceStore{winner: winner}, SessionOptions{})

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("lost race must not raise: %v", err)
	}
	if session.Screen != "2560x1440" {
		t.Fatalf("expected the winning row, got %+v", session)
	}
}

func TestFindSessionLostRaceFallsBackToLocal(t *testing.T) {
	svc, _ := newTestSessionService(t, &raceStore{winnerErr: errors.New("replica lag")}, SessionOptions{})

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("lost race must not raise: %v", err)
	}
	if session == nil || session.Screen != "1920x1080" {
		t.Fatalf("expected the locally built session, got %+v", session)
	}
}

func TestFindSessionPropagatesCreateFailure(t *testing.T) {
	boom := errors.New("disk full")
	svc, _ := newTestSessionService(t, &raceStore{createErr: boom}, SessionOptions{})

	_, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if !errors.Is(err, boom) {
		t.Fatalf("expected create failure to propagate, got %v", err)
	}
}

// lookupCacheStub 记录缓存调用，并把未命中委托给存储。
type lookupCacheStub struct {
	inner        sessionStore
	websiteCalls int
	sessionCalls int
	stored       []*db.Session
}

func (c *lookupCacheStub) FetchWebsite(ctx context.Context, id string) (*db.Website, error) {
	c.websiteCalls++
	return c.inner.GetWebsite(ctx, id)
}

func (c *lookupCacheStub) FetchSession(ctx context.Context, id string) (*db.Session, error) {
	c.sessionCalls++
	return c.inner.GetSession(ctx, id)
}

func (c *lookupCacheStub) StoreSession(_ context.Context, session *db.Session) error {
	c.stored = append(c.stored, session)
	return nil
}

func TestFindSessionUsesLookupCache(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	lookup := &lookupCacheStub{inner: store.New(gdb)}

	detector, _ := detect.NewDetector("")
	svc := NewSessionService(st, lookup, token.NewCodec("s", 0), detector, SessionOptions{CacheEnabled: true}, logger.Discard())

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if lookup.websiteCalls != 1 || lookup.sessionCalls != 1 {
		t.Fatalf("expected cache lookups, got website=%d session=%d", lookup.websiteCalls, lookup.sessionCalls)
	}
	if st.websiteCalls.Load() != 0 || st.getCalls.Load() != 0 {
		t.Fatal("direct storage reads should be skipped when the cache is enabled")
	}
	if st.createCalls.Load() != 1 {
		t.Fatalf("expected create through storage, got %d", st.createCalls.Load())
	}
	if len(lookup.stored) != 1 || lookup.stored[0].ID != session.ID {
		t.Fatalf("expected new session to be written to the cache, got %v", lookup.stored)
	}
}

func TestFindSessionCacheFlagWithoutCacheUsesStorage(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	st := &countingStore{inner: store.New(gdb)}
	svc, _ := newTestSessionService(t, st, SessionOptions{CacheEnabled: true})

	if _, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID)); err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if st.websiteCalls.Load() != 1 {
		t.Fatalf("expected storage website lookup, got %d", st.websiteCalls.Load())
	}
}

func TestFindSessionSaltChangesID(t *testing.T) {
	gdb := setupSessionTestDB(t)
	seedWebsite(t, gdb, testWebsiteID, false)
	svc, _ := newTestSessionService(t, store.New(gdb), SessionOptions{
		ColumnarEnabled: true,
		Salt:            func() string { return "pepper" },
	})

	session, err := svc.FindSession(context.Background(), newCollectRequest(nil), collectBody(testWebsiteID))
	if err != nil {
		t.Fatalf("FindSession returned error: %v", err)
	}
	if session.ID != ident.UUID("pepper", testWebsiteID, "example.com", testIP, testUA) {
		t.Fatalf("salt was not applied: %s", session.ID)
	}
}
