package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
	"github.com/mknutsen/chorequest/internal/repository"
	"github.com/mknutsen/chorequest/internal/session"
)

type fakeDrive struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: make(map[string][]byte)}
}

func (f *fakeDrive) ReadNamed(_ context.Context, _ model.DriveCredentials, folder, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path.Join(folder, name)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return data, nil
}

func (f *fakeDrive) WriteDocument(_ context.Context, _ model.DriveCredentials, folder, name string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Join(folder, name)] = content
	return nil
}

type fakeTokens struct {
	token string
	creds *model.DriveCredentials
}

func (f *fakeTokens) AuthToken(context.Context) (string, error) {
	if f.token == "" {
		return "", errs.ErrNoSession
	}
	return f.token, nil
}

func (f *fakeTokens) DriveCredentials(context.Context) (*model.DriveCredentials, error) {
	return f.creds, nil
}

// fakeSyncer records the order of calls so shutdown ordering is testable.
type fakeSyncer struct {
	mu      sync.Mutex
	calls   []string
	syncErr error
	// syncRan reports a run that completed despite syncErr, the shape a
	// partial per-entity failure takes.
	syncRan bool
}

func (f *fakeSyncer) SyncAll(context.Context, bool) (bool, error) {
	f.record("sync")
	return f.syncErr == nil || f.syncRan, f.syncErr
}

func (f *fakeSyncer) RequestSync() { f.record("request") }
func (f *fakeSyncer) Stop()        { f.record("stop") }

func (f *fakeSyncer) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSyncer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	server   *Server
	router   http.Handler
	sessions *session.Store
	chores   *cache.ChoreStore
	syncer   *fakeSyncer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	hub := notify.NewHub(logger)

	store := session.NewStore(t.TempDir()+"/session.bin", "test-secret")
	sess := model.Session{
		UserID:      "user-1",
		FamilyID:    "fam-1",
		AuthToken:   "tok-1",
		DriveFolder: "families/fam-1",
		CreatedAt:   time.Now(),
	}
	if err := store.Save(sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unexpected rpc call"})
	}))
	t.Cleanup(rpcSrv.Close)
	rpcClient := rpc.NewClient(rpc.Config{BaseURL: rpcSrv.URL, Timeout: 2 * time.Second}, logger)

	chores := cache.NewChoreStore(db, hub)
	templates := cache.NewTemplateStore(db, hub)
	rewards := cache.NewRewardStore(db, hub)
	redemptions := cache.NewRedemptionStore(db, hub)
	users := cache.NewUserStore(db, hub)
	logs := cache.NewActivityStore(db, hub)

	backend := &repository.Backend{
		Sessions: store,
		Tokens: &fakeTokens{token: "tok-1", creds: &model.DriveCredentials{
			AccessKeyID:     "AKID",
			SecretAccessKey: "secret",
			SessionToken:    "token",
			ExpiresAt:       time.Now().Add(time.Hour),
		}},
		Drive:  newFakeDrive(),
		RPC:    rpcClient,
		Logger: logger,
	}

	activityRepo := repository.NewActivityRepo(backend, logs)
	choreRepo := repository.NewChoreRepo(backend, chores, templates, activityRepo)
	rewardRepo := repository.NewRewardRepo(backend, rewards)
	redemptionRepo := repository.NewRedemptionRepo(backend, redemptions, activityRepo)
	userRepo := repository.NewUserRepo(backend, users, activityRepo)
	wiper := repository.NewWiper(backend, chores, templates, rewards, redemptions, users, logs)

	syncer := &fakeSyncer{}
	srv := New(choreRepo, rewardRepo, redemptionRepo, userRepo, activityRepo, wiper, store, syncer, hub, logger)
	t.Cleanup(srv.Close)

	return &testEnv{
		server:   srv,
		router:   srv.Router(),
		sessions: store,
		chores:   chores,
		syncer:   syncer,
	}
}

func (env *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestChoreCreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chores", model.Chore{Title: "Dishes", Points: 10, AssignedTo: []string{"user-2"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created model.Chore
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Fatal("created chore has no id")
	}

	rec = env.do(t, http.MethodGet, "/api/chores/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got model.Chore
	decodeBody(t, rec, &got)
	if got.Title != "Dishes" {
		t.Fatalf("title = %q, want Dishes", got.Title)
	}
}

func TestChoreCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chores", model.Chore{Points: 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chores", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	env.router.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d, want 400", raw.Code)
	}
}

func TestChoreGetUnknownIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/chores/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestNoSessionIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sessions.Clear(); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	rec := env.do(t, http.MethodPost, "/api/chores", model.Chore{Title: "Dishes"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSyncNow(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if calls := env.syncer.recorded(); len(calls) != 1 || calls[0] != "sync" {
		t.Fatalf("syncer calls = %v", calls)
	}
}

func TestSyncFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.syncErr = errors.New("backend down")
	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSyncPartialFailureStillReportsSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.syncErr = errors.New("rewards: backend down")
	env.syncer.syncRan = true

	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when the run completed", rec.Code)
	}
	var resp struct {
		Ran      bool   `json:"ran"`
		Warnings string `json:"warnings"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Ran {
		t.Error("ran = false, want true")
	}
	if resp.Warnings == "" {
		t.Error("warnings missing for a partial failure")
	}
}

func TestLogoutStopsSyncThenClearsSessionAndCache(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chores", model.Chore{Title: "Dishes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed chore status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body %s", rec.Code, rec.Body.String())
	}

	if calls := env.syncer.recorded(); len(calls) == 0 || calls[0] != "stop" {
		t.Fatalf("sync not stopped first: calls = %v", calls)
	}
	sess, err := env.sessions.Load()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess != nil {
		t.Fatal("session still present after logout")
	}
	chores, err := env.chores.List()
	if err != nil {
		t.Fatalf("list chores: %v", err)
	}
	if len(chores) != 0 {
		t.Fatalf("cache not cleared: %d chores remain", len(chores))
	}
}

func TestActivitySinceMustBeRFC3339(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/activity?since=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGameLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/game", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("state before create status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/game", map[string]any{"board_size": 3, "difficulty": "easy"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create game status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view gameView
	decodeBody(t, rec, &view)
	if view.Size != 3 || view.Turn != "X" {
		t.Fatalf("unexpected initial view: %+v", view)
	}

	rec = env.do(t, http.MethodPost, "/api/game/moves", map[string]int{"row": 0, "col": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("move status = %d, body %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &view)
	if view.MoveCount != 1 || view.Cells[0][0] != "X" {
		t.Fatalf("move not applied: %+v", view)
	}

	rec = env.do(t, http.MethodPost, "/api/game/moves", map[string]int{"row": 0, "col": 0})
	if rec.Code != http.StatusConflict {
		t.Fatalf("replayed move status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/game/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	decodeBody(t, rec, &view)
	if view.MoveCount != 0 {
		t.Fatalf("reset left moves on the board: %+v", view)
	}

	rec = env.do(t, http.MethodPost, "/api/game", map[string]any{"board_size": 7})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized board status = %d, want 400", rec.Code)
	}
}

func TestSessionStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status struct {
		SignedIn bool   `json:"signed_in"`
		UserID   string `json:"user_id"`
	}
	decodeBody(t, rec, &status)
	if !status.SignedIn || status.UserID != "user-1" {
		t.Fatalf("unexpected status: %+v", status)
	}

	env.do(t, http.MethodPost, "/api/logout", nil)
	rec = env.do(t, http.MethodGet, "/api/session", nil)
	decodeBody(t, rec, &status)
	if status.SignedIn {
		t.Fatal("still signed in after logout")
	}
}
