package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/revittco/toolgw/internal/audit"
	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/config"
	"github.com/revittco/toolgw/internal/gateway"
	"github.com/revittco/toolgw/internal/jobs"
	"github.com/revittco/toolgw/internal/mcpserver"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/proxy"
	"github.com/revittco/toolgw/internal/ratelimit"
	"github.com/revittco/toolgw/internal/registry"
	"github.com/revittco/toolgw/internal/store"
)

// mockStore implements store.Store with minimal stubs for router tests.
type mockStore struct {
	tools []store.Tool
	jobs  map[string]*store.Job
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[string]*store.Job)}
}

func (m *mockStore) CreateTool(context.Context, *store.Tool) error { return nil }
func (m *mockStore) GetTool(context.Context, string) (*store.Tool, error) { return nil, store.ErrNotFound }
func (m *mockStore) GetToolByName(context.Context, string) (*store.Tool, error) { return nil, store.ErrNotFound }
func (m *mockStore) ListTools(context.Context) ([]store.Tool, error) { return m.tools, nil }
func (m *mockStore) ListActiveTools(context.Context) ([]store.Tool, error) {
	var out []store.Tool
	for _, t := range m.tools {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}
func (m *mockStore) UpdateTool(context.Context, *store.Tool) error { return nil }
func (m *mockStore) DeactivateTool(context.Context, string) error { return nil }
func (m *mockStore) IncrementToolUsage(context.Context, string, time.Time) error { return nil }
func (m *mockStore) InsertAuditLog(context.Context, *store.AuditLog) error { return nil }
func (m *mockStore) QueryAuditLogs(context.Context, store.AuditFilter) ([]store.AuditLog, int, error) {
	return nil, 0, nil
}
func (m *mockStore) CreateJob(_ context.Context, j *store.Job) error {
	m.jobs[j.ID] = j
	return nil
}
func (m *mockStore) GetJob(_ context.Context, id string) (*store.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}
func (m *mockStore) UpdateJob(_ context.Context, j *store.Job) error {
	m.jobs[j.ID] = j
	return nil
}
func (m *mockStore) ReapJobs(context.Context, time.Time) (int, error) { return 0, nil }
func (m *mockStore) Tx(ctx context.Context, fn func(store.Store) error) error { return fn(m) }
func (m *mockStore) Ping(context.Context) error { return nil }
func (m *mockStore) Close() error { return nil }

func newTestRouter(t *testing.T, ms *mockStore) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		AppName:              "toolgw",
		JWTSecretKey:         "test-secret",
		JWTAllowedAlgorithms: []string{"HS256"},
		JWTUserIDClaim:       "sub",
		JWTIatClaim:          "iat",
		JWTTenantClaim:       "workspace",
		JWTAPIVersionClaim:   "v",
		JWTClockSkew:         time.Minute,
	}

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(policyPath, []byte(`
roles:
  engineer:
    allowed_tools:
      - "*"
`), 0o644)
	pol := policy.NewEngine(policyPath)
	if err := pol.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reg := registry.New(ms)
	validator := auth.NewValidator(cfg)
	prx := proxy.New("shared-secret", 5*time.Second)
	rec := audit.NewRecorder(ms)
	gw := gateway.NewService(reg, pol, prx, rec, 0)
	dispatcher := mcpserver.NewDispatcher(reg, pol, gw, ratelimit.New(), rec, cfg.AppName, "test")
	runner := jobs.NewRunner(ms, gw)

	router := NewRouter(RouterDeps{
		Config:     cfg,
		Store:      ms,
		Registry:   reg,
		Policy:     pol,
		Validator:  validator,
		Dispatcher: dispatcher,
		JobRunner:  runner,
	})
	return router, cfg
}

func signTestToken(t *testing.T, cfg *config.Config, roles []string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "user-1",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"roles": roles,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(cfg.JWTSecretKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestRouter_Health_NoAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t, newMockStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestRouter_MCPRoute_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t, newMockStore())

	req := httptest.NewRequest(http.MethodPost, "/calculator/sse", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestRouter_MCPRoute_InvalidScope(t *testing.T) {
	router, cfg := newTestRouter(t, newMockStore())
	tok := signTestToken(t, cfg, []string{"engineer"})

	req := httptest.NewRequest(http.MethodPost, "/bogus/sse", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestRouter_MCPRoute_InvalidScopeWithoutAuth(t *testing.T) {
	router, _ := newTestRouter(t, newMockStore())

	req := httptest.NewRequest(http.MethodPost, "/bogus/sse", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (scope checked before auth)", rr.Code)
	}
	var body struct {
		Error mcpserver.RPCError `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != -32010 {
		t.Fatalf("error code = %d, want -32010", body.Error.Code)
	}
}

func TestRouter_ToolsCall_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"sum":3}}`))
	}))
	defer srv.Close()

	ms := newMockStore()
	ms.tools = []store.Tool{{ID: "t1", Name: "calc_add", Scope: "calculator", BackendURL: srv.URL, IsActive: true}}
	router, cfg := newTestRouter(t, ms)
	tok := signTestToken(t, cfg, []string{"engineer"})

	reqBody := `{"jsonrpc":"2.0","id":"1","method":"tools/call","params":{"name":"calc_add","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/calculator/sse", strings.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rr.Code, rr.Body.String())
	}
	var resp mcpserver.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
}

func TestRouter_SSE_EmitsEndpointEvent(t *testing.T) {
	router, cfg := newTestRouter(t, newMockStore())
	tok := signTestToken(t, cfg, []string{"engineer"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/calculator/sse", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Host = "gw.example.com"
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rr, req)
		close(done)
	}()

	// Let the handler emit its handshake frame, then disconnect.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream; charset=utf-8" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "event: endpoint\ndata: http://gw.example.com/calculator/sse\n\n") {
		t.Fatalf("body = %q, want an endpoint event with the absolute POST URL", body)
	}
}

func TestRouter_AdminRoute_RequiresAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t, newMockStore())
	tok := signTestToken(t, cfg, []string{"engineer"})

	req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}
