package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/cache"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*auth.User)}
}

func (m *memUsers) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return &storage.ConflictError{Field: "email"}
		}
		if u.Username == user.Username {
			return &storage.ConflictError{Field: "username"}
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.byID[user.ID] = &stored
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memUsers) ExistsByEmailOrUsername(_ context.Context, email, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	field := ""
	for _, u := range m.byID {
		if u.Email == email {
			return "email", nil
		}
		if u.Username == username {
			field = "username"
		}
	}
	return field, nil
}

func (m *memUsers) SetRefreshTokenHash(_ context.Context, userID int64, hash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.RefreshTokenHash = hash
	return nil
}

type memUsage struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]usage.Entry
}

func newMemUsage() *memUsage {
	return &memUsage{entries: make(map[int64]usage.Entry)}
}

func (m *memUsage) Create(_ context.Context, entry *usage.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memUsage) Get(_ context.Context, userID, id int64) (*usage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (m *memUsage) Update(_ context.Context, entry *usage.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entry.ID]
	if !ok || e.UserID != entry.UserID {
		return storage.ErrNotFound
	}
	entry.CreatedAt = e.CreatedAt
	entry.UpdatedAt = time.Now()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memUsage) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memUsage) List(_ context.Context, userID int64, f usage.ListFilter) ([]usage.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []usage.Entry
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) || !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		if f.AppName != "" && !strings.EqualFold(f.AppName, e.AppName) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m *memUsage) ListRange(_ context.Context, userID int64, from, to usage.Date) ([]usage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []usage.Entry
	for _, e := range m.entries {
		if e.UserID == userID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memUsage) ActiveUsers(context.Context, usage.Date, usage.Date) ([]int64, error) {
	return nil, nil
}

type memSnapshots struct {
	snapshots []analytics.Snapshot
}

func (m *memSnapshots) ListSnapshots(_ context.Context, userID int64, from, to usage.Date) ([]analytics.Snapshot, error) {
	var out []analytics.Snapshot
	for _, s := range m.snapshots {
		if s.UserID == userID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

var testNow = time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)

type testEnv struct {
	server    *Server
	users     *memUsers
	usage     *memUsage
	snapshots *memSnapshots
	issuer    *auth.TokenIssuer
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	})
	require.NoError(t, err)

	env := &testEnv{
		users:     newMemUsers(),
		usage:     newMemUsage(),
		snapshots: &memSnapshots{},
		issuer:    issuer,
	}
	service := analytics.NewService(nil, env.usage,
		analytics.WithCache(cache.NewMemory(100, time.Minute), time.Minute),
		analytics.WithSnapshots(env.snapshots),
	)

	cfg := Config{
		Users:          env.users,
		Usage:          env.usage,
		Analytics:      service,
		Issuer:         issuer,
		Hasher:         auth.NewPasswordHasher(bcrypt.MinCost),
		Clock:          func() time.Time { return testNow },
		ComputeTimeout: 5 * time.Second,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	env.server = NewServer(cfg)
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user and returns its id and tokens
func (e *testEnv) signUp(t *testing.T, username string) (int64, auth.TokenPair) {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var payload struct {
		User   auth.User      `json:"user"`
		Tokens auth.TokenPair `json:"tokens"`
	}
	decodeData(t, rec, &payload)
	return payload.User.ID, payload.Tokens
}

// decodeData decodes the envelope and unmarshals its data into dest
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) httputil.Envelope {
	t.Helper()
	var raw struct {
		httputil.Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if dest != nil {
		require.NoError(t, json.Unmarshal(raw.Data, dest))
	}
	return raw.Envelope
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	return decodeData(t, rec, nil)
}
