package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/kiln/internal/auth"
	"github.com/efebarandurmaz/kiln/internal/chunker"
	"github.com/efebarandurmaz/kiln/internal/generator"
	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/retriever"
	"github.com/efebarandurmaz/kiln/internal/service"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		var a float32
		for _, r := range t {
			a += float32(r % 11)
		}
		vecs[i] = []float32{a / float32(len(t)+1), 1}
	}
	return vecs, nil
}

func (fakeProvider) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return &llm.Response{Content: "a grounded answer"}, nil
}

type fixture struct {
	ts    *httptest.Server
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := fakeProvider{}
	repo := vector.NewMemory()
	svc := service.New(service.Deps{
		Splitter:  chunker.New(200, 40),
		Indexer:   vector.NewIndexer(provider, repo, 0),
		Retriever: retriever.New(provider, repo, retriever.Options{TopK: 3}, nil),
		Generator: generator.New(provider, generator.Options{}, nil),
	})

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("Go is a compiled language designed at Google."), 0o644)
	if _, err := svc.IngestDir(context.Background(), dir); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	users := auth.NewMemory()
	if _, err := users.Create(context.Background(), "alice", "password-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tokens, err := auth.NewTokenManager("test-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	srv := New(Config{}, svc, users, tokens, nil)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	f := &fixture{ts: ts}
	f.token = f.login(t, "alice", "password-1")
	return f
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(f.ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Token
}

func (f *fixture) post(t *testing.T, path, token string, payload any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, err := http.Post(f.ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/ask", f.token, map[string]string{"query": "what is go?", "session_id": "s1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		Answer   string `json:"answer"`
		TurnID   string `json:"turn_id"`
		Grounded bool   `json:"grounded"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Answer == "" || out.TurnID == "" {
		t.Errorf("incomplete response: %+v", out)
	}
	if !out.Grounded {
		t.Error("answer over ingested corpus should be grounded")
	}
}

func TestAsk_SessionContinuity(t *testing.T) {
	f := newFixture(t)

	// First ask lets the server mint the session ID.
	resp := f.post(t, "/api/ask", f.token, map[string]string{"query": "what is go?"})
	var first struct {
		SessionID string `json:"session_id"`
	}
	json.NewDecoder(resp.Body).Decode(&first)
	resp.Body.Close()
	if first.SessionID == "" {
		t.Fatal("server did not assign a session id")
	}

	// Reusing the returned ID must land in the same conversation.
	resp = f.post(t, "/api/ask", f.token, map[string]string{"query": "and who designed it?", "session_id": first.SessionID})
	var second struct {
		SessionID string `json:"session_id"`
	}
	json.NewDecoder(resp.Body).Decode(&second)
	resp.Body.Close()
	if second.SessionID != first.SessionID {
		t.Fatalf("session changed across turns: %q then %q", first.SessionID, second.SessionID)
	}

	resp = f.get(t, "/api/history/"+first.SessionID, f.token)
	defer resp.Body.Close()
	var hist struct {
		Turns []struct {
			Query string `json:"query"`
		} `json:"turns"`
	}
	json.NewDecoder(resp.Body).Decode(&hist)
	if len(hist.Turns) != 2 {
		t.Fatalf("turns = %d, want both asks in one session", len(hist.Turns))
	}
}

func TestAsk_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/ask", "", map[string]string{"query": "q"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAsk_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/ask", f.token, map[string]string{"query": "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/search", f.token, map[string]string{"query": "compiled language"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Hits []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"hits"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Hits) == 0 {
		t.Error("expected hits")
	}
}

func TestFeedbackAndHistory(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/ask", f.token, map[string]string{"query": "what is go?", "session_id": "s1"})
	var ask struct {
		TurnID string `json:"turn_id"`
	}
	json.NewDecoder(resp.Body).Decode(&ask)
	resp.Body.Close()

	resp = f.post(t, "/api/feedback", f.token, map[string]any{"turn_id": ask.TurnID, "feedback": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feedback status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.get(t, "/api/history/s1", f.token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var hist struct {
		Turns []struct {
			Query    string `json:"query"`
			Feedback int    `json:"feedback"`
		} `json:"turns"`
	}
	json.NewDecoder(resp.Body).Decode(&hist)
	if len(hist.Turns) != 1 || hist.Turns[0].Feedback != 1 {
		t.Errorf("turns = %+v", hist.Turns)
	}
}

func TestFeedback_UnknownTurn(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/feedback", f.token, map[string]any{"turn_id": "ghost", "feedback": 1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProbes(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/live", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live status = %d", resp.StatusCode)
	}

	// Not ready until the operator flips it.
	resp = f.get(t, "/api/ready", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503 before SetReady", resp.StatusCode)
	}
}

func TestHealthChecks(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/health", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	var out HealthResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Status != HealthStatusHealthy {
		t.Errorf("status = %s", out.Status)
	}
}

func TestLogin_Audited(t *testing.T) {
	users := auth.NewMemory()
	users.Create(context.Background(), "alice", "password-1")
	tokens, _ := auth.NewTokenManager("test-secret", time.Minute)

	var audit bytes.Buffer
	svc := service.New(service.Deps{
		Retriever: retriever.New(fakeProvider{}, vector.NewMemory(), retriever.Options{}, nil),
		Generator: generator.New(fakeProvider{}, generator.Options{}, nil),
	})
	srv := New(Config{Audit: observability.NewAuditWriter(&audit)}, svc, users, tokens, nil)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if !strings.Contains(audit.String(), "auth.login_failed") {
		t.Errorf("audit log missing failed login: %s", audit.String())
	}
}

func TestShutdownHandler_RunsHooksInPriorityOrder(t *testing.T) {
	h := NewShutdownHandler(time.Second, nil)

	var order []string
	h.RegisterHook("stores", 10, func(context.Context) error {
		order = append(order, "stores")
		return nil
	})
	h.RegisterHook("http", 0, func(context.Context) error {
		order = append(order, "http")
		return nil
	})

	h.Start()
	h.Shutdown()
	h.Wait()

	if len(order) != 2 || order[0] != "http" || order[1] != "stores" {
		t.Errorf("hook order = %v, want http before stores", order)
	}
}
