package httpx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/splax/scribe/internal/domain"
	"github.com/splax/scribe/internal/repository"
	"github.com/splax/scribe/internal/service/auth"
	"github.com/splax/scribe/internal/service/transcription"
	"github.com/splax/scribe/pkg/config"
)

type memoryStore struct {
	mu             sync.Mutex
	users          map[string]*domain.User
	transcriptions []domain.Transcription
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*domain.User)}
}

func (s *memoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return repository.ErrConflict
	}
	copied := *user
	s.users[user.Email] = &copied
	return nil
}

func (s *memoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memoryStore) CreateTranscription(_ context.Context, t *domain.Transcription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptions = append(s.transcriptions, *t)
	return nil
}

func (s *memoryStore) ListTranscriptionsByUser(_ context.Context, userID string) ([]domain.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transcription
	for i := len(s.transcriptions) - 1; i >= 0; i-- {
		if s.transcriptions[i].UserID == userID {
			out = append(out, s.transcriptions[i])
		}
	}
	return out, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcriptions)
}

type transcriberStub struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *transcriberStub) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, s.err
}

type routerFixture struct {
	router   *Router
	store    *memoryStore
	provider *transcriberStub
	registry *prometheus.Registry
}

func newFixture(t *testing.T, opts Options) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemoryStore()
	provider := &transcriberStub{text: "hello world"}
	cfg := config.APIConfig{JWTSecret: "router-secret", BcryptCost: bcrypt.MinCost}

	registry := prometheus.NewRegistry()
	opts.Registerer = registry
	opts.Gatherer = registry

	router := NewRouter(logger,
		auth.New(store, logger, cfg),
		transcription.New(store, provider, nil, logger),
		NewMemoryRateLimiter(),
		opts,
	)
	t.Cleanup(router.Close)
	return &routerFixture{router: router, store: store, provider: provider, registry: registry}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req)
}

func (f *routerFixture) registerAndLogin(t *testing.T, name, email, password string) string {
	t.Helper()
	rec := f.postJSON(t, "/sign-in", map[string]string{"name": name, "email": email, "password": password})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign-in: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.postJSON(t, "/login", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JWTToken string `json:"jwtToken"`
	}
	decodeBody(t, rec, &resp)
	if resp.JWTToken == "" {
		t.Fatal("login returned empty token")
	}
	return resp.JWTToken
}

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func uploadRequest(t *testing.T, token string, parts ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		if p.contentType != "" {
			header.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := w.Write(p.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload-audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func historyRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/transcriptions", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, rec, &body)
	return body.Message
}

func TestRootReportsRunning(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "Backend is running" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRegistrationAndLoginErrors(t *testing.T) {
	f := newFixture(t, Options{})
	f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")

	rec := f.postJSON(t, "/sign-in", map[string]string{"name": "Other", "email": "ada@example.com", "password": "x"})
	if rec.Code != http.StatusBadRequest || messageOf(t, rec) != "User already exists" {
		t.Fatalf("duplicate sign-in: got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.postJSON(t, "/sign-in", map[string]string{"name": "", "email": "b@example.com", "password": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", rec.Code)
	}

	rec = f.postJSON(t, "/login", map[string]string{"email": "nobody@example.com", "password": "hunter2"})
	if rec.Code != http.StatusBadRequest || messageOf(t, rec) != "User doesn't exist" {
		t.Fatalf("unknown user: got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.postJSON(t, "/login", map[string]string{"email": "ada@example.com", "password": "wrong"})
	if rec.Code != http.StatusBadRequest || messageOf(t, rec) != "Password didn't match" {
		t.Fatalf("wrong password: got %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{"))
	if rec := f.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d", rec.Code)
	}

	if rec := f.do(httptest.NewRequest(http.MethodGet, "/login", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /login: expected 405, got %d", rec.Code)
	}
}

func TestSignInRejectsPasswordOverBcryptLimit(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.postJSON(t, "/sign-in", map[string]string{"name": "Ada", "email": "ada@example.com", "password": strings.Repeat("p", 80)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := messageOf(t, rec); !strings.Contains(msg, "at most 72 bytes") {
		t.Fatalf("unexpected message %q", msg)
	}
	if f.store.users["ada@example.com"] != nil {
		t.Fatal("no user may be stored")
	}

	f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")
	rec = f.postJSON(t, "/login", map[string]string{"email": "ada@example.com", "password": strings.Repeat("p", 80)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("login: expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadAndHistoryRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")
	audio := []byte("RIFF....WAVEfmt ")

	rec := f.do(uploadRequest(t, token, filePart{field: "audio", filename: "clip.wav", contentType: "audio/wav", data: audio}))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var uploaded map[string]string
	decodeBody(t, rec, &uploaded)
	if uploaded["message"] != "Audio and transcription stored successfully" || uploaded["transcriptionText"] != "hello world" {
		t.Fatalf("unexpected upload response: %v", uploaded)
	}

	f.provider.text = "second take"
	rec = f.do(uploadRequest(t, token, filePart{field: "audio", filename: "clip2.mp3", contentType: "audio/mpeg", data: []byte("ID3")}))
	if rec.Code != http.StatusOK {
		t.Fatalf("second upload: expected 200, got %d", rec.Code)
	}

	rec = f.do(historyRequest(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []transcriptionView
	decodeBody(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Text != "second take" || items[1].Text != "hello world" {
		t.Fatalf("expected newest first, got %q then %q", items[0].Text, items[1].Text)
	}
	want := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio)
	if items[1].Audio != want {
		t.Fatalf("unexpected data uri %q", items[1].Audio)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(items[1].Audio, "data:audio/wav;base64,"))
	if err != nil || !bytes.Equal(decoded, audio) {
		t.Fatalf("audio did not round-trip: %v", err)
	}
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	f := newFixture(t, Options{})
	alice := f.registerAndLogin(t, "Alice", "alice@example.com", "pw-a")
	bob := f.registerAndLogin(t, "Bob", "bob@example.com", "pw-b")

	if rec := f.do(uploadRequest(t, alice, filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: []byte("A")})); rec.Code != http.StatusOK {
		t.Fatalf("alice upload: %d", rec.Code)
	}

	rec := f.do(historyRequest(bob))
	if rec.Code != http.StatusOK {
		t.Fatalf("bob history: expected 200, got %d", rec.Code)
	}
	var items []transcriptionView
	decodeBody(t, rec, &items)
	if len(items) != 0 {
		t.Fatalf("bob must not see alice's records, got %d", len(items))
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty history must encode as [], got %q", rec.Body.String())
	}
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	f := newFixture(t, Options{})
	cases := map[string]*http.Request{
		"no header":    historyRequest(""),
		"garbage":      historyRequest("not-a-jwt"),
		"upload":       uploadRequest(t, "", filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: []byte("A")}),
		"wrong scheme": func() *http.Request { r := historyRequest(""); r.Header.Set("Authorization", "Token abc"); return r }(),
	}
	for name, req := range cases {
		rec := f.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") || rec.Body.String() != unauthorizedBody {
			t.Fatalf("%s: unexpected 401 body %q (%s)", name, rec.Body.String(), rec.Header().Get("Content-Type"))
		}
	}
	if f.provider.calls != 0 || f.store.count() != 0 {
		t.Fatal("rejected requests must not reach the pipeline")
	}
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 1 << 10})
	token := f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")

	cases := []struct {
		name    string
		req     *http.Request
		status  int
		message string
	}{
		{
			name:    "missing file",
			req:     uploadRequest(t, token, filePart{field: "other", filename: "a.wav", contentType: "audio/wav", data: []byte("A")}),
			status:  http.StatusBadRequest,
			message: "No file uploaded",
		},
		{
			name:    "missing mime type",
			req:     uploadRequest(t, token, filePart{field: "audio", filename: "a.wav", data: []byte("A")}),
			status:  http.StatusBadRequest,
			message: "Invalid file data",
		},
		{
			name:    "empty file",
			req:     uploadRequest(t, token, filePart{field: "audio", filename: "a.wav", contentType: "audio/wav"}),
			status:  http.StatusBadRequest,
			message: "Invalid file data",
		},
		{
			name: "two files",
			req: uploadRequest(t, token,
				filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: []byte("A")},
				filePart{field: "audio", filename: "b.wav", contentType: "audio/wav", data: []byte("B")},
			),
			status:  http.StatusBadRequest,
			message: "Only one audio file is allowed",
		},
		{
			name:    "too large",
			req:     uploadRequest(t, token, filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: bytes.Repeat([]byte("A"), 4<<10)}),
			status:  http.StatusRequestEntityTooLarge,
			message: "File too large",
		},
	}
	for _, tc := range cases {
		rec := f.do(tc.req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, rec.Code, rec.Body.String())
		}
		if got := messageOf(t, rec); got != tc.message {
			t.Fatalf("%s: expected message %q, got %q", tc.name, tc.message, got)
		}
	}

	notMultipart := httptest.NewRequest(http.MethodPost, "/upload-audio", strings.NewReader(`{"audio":"x"}`))
	notMultipart.Header.Set("Content-Type", "application/json")
	notMultipart.Header.Set("Authorization", "Bearer "+token)
	if rec := f.do(notMultipart); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart: expected 400, got %d", rec.Code)
	}

	if f.provider.calls != 0 || f.store.count() != 0 {
		t.Fatalf("rejected uploads must not reach the provider (calls=%d records=%d)", f.provider.calls, f.store.count())
	}
}

func TestUploadProviderFailure(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")
	f.provider.err = errors.New("upstream timeout")

	rec := f.do(uploadRequest(t, token, filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: []byte("A")}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := messageOf(t, rec); got != "Failed to process audio" {
		t.Fatalf("unexpected message %q", got)
	}
	if f.provider.calls != 1 {
		t.Fatalf("provider must be called exactly once, got %d", f.provider.calls)
	}
	if f.store.count() != 0 {
		t.Fatal("no record may be stored when the provider fails")
	}
}

func TestSignInRateLimited(t *testing.T) {
	f := newFixture(t, Options{})
	var last *httptest.ResponseRecorder
	for i := 0; i < rateLimitSignIn+1; i++ {
		last = f.postJSON(t, "/sign-in", map[string]string{"name": "", "email": "", "password": ""})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts, got %d", rateLimitSignIn, last.Code)
	}
	if last.Header().Get("X-RateLimit-Limit") != "5" || last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate headers: %v", last.Header())
	}
}

func signInFrom(remoteAddr, forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sign-in", strings.NewReader(`{"name":"","email":"","password":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return req
}

func TestSignInRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	f := newFixture(t, Options{})
	limited := 0
	for i := 0; i < 20; i++ {
		rec := f.do(signInFrom("198.51.100.7:40000", fmt.Sprintf("203.0.113.%d", i+1)))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 20-rateLimitSignIn {
		t.Fatalf("expected %d rate-limited responses, got %d", 20-rateLimitSignIn, limited)
	}
}

func TestSignInRateLimitHonoursForwardedForFromTrustedProxy(t *testing.T) {
	f := newFixture(t, Options{TrustedProxies: []string{"10.0.0.0/8"}})
	for i := 0; i < rateLimitSignIn; i++ {
		if rec := f.do(signInFrom("10.0.0.2:8080", "203.0.113.1")); rec.Code == http.StatusTooManyRequests {
			t.Fatalf("attempt %d limited early", i+1)
		}
	}
	if rec := f.do(signInFrom("10.0.0.3:8080", "203.0.113.1")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same client behind another proxy: expected 429, got %d", rec.Code)
	}
	if rec := f.do(signInFrom("10.0.0.2:8080", "203.0.113.2")); rec.Code == http.StatusTooManyRequests {
		t.Fatal("a different client must have its own window")
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{CORSAllowedOrigins: []string{"https://app.example"}})

	preflight := httptest.NewRequest(http.MethodOptions, "/upload-audio", nil)
	preflight.Header.Set("Origin", "https://app.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := f.do(preflight)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatal("preflight must allow the Authorization header")
	}

	denied := httptest.NewRequest(http.MethodOptions, "/upload-audio", nil)
	denied.Header.Set("Origin", "https://evil.example")
	denied.Header.Set("Access-Control-Request-Method", http.MethodPost)
	if rec := f.do(denied); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight: expected 403, got %d", rec.Code)
	}

	simple := httptest.NewRequest(http.MethodGet, "/", nil)
	simple.Header.Set("Origin", "https://evil.example")
	rec = f.do(simple)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin must not receive CORS headers: %d %v", rec.Code, rec.Header())
	}
}

func TestCORSWildcard(t *testing.T) {
	f := newFixture(t, Options{CORSAllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := f.do(req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHealthz(t *testing.T) {
	healthy := newFixture(t, Options{DBHealth: func(context.Context) error { return nil }})
	if rec := healthy.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	degraded := newFixture(t, Options{DBHealth: func(context.Context) error { return errors.New("connection refused") }})
	rec := degraded.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected status %v", body["status"])
	}
}

func TestMetricsExposeTranscriptionOutcomes(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.registerAndLogin(t, "Ada", "ada@example.com", "hunter2")
	if rec := f.do(uploadRequest(t, token, filePart{field: "audio", filename: "a.wav", contentType: "audio/wav", data: []byte("A")})); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`scribe_pipeline_transcriptions_total{outcome="stored"} 1`,
		`scribe_api_http_requests_total{method="POST",route="/upload-audio",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":     true,
		"bearer abc":     true,
		"Bearer":         false,
		"Bearer a b":     false,
		"Basic abc":      false,
		"":               false,
		"  Bearer  abc ": true,
	}
	for header, ok := range cases {
		token, err := bearerToken(header)
		if ok && (err != nil || token != "abc") {
			t.Fatalf("%q: expected abc, got %q (%v)", header, token, err)
		}
		if !ok && err == nil {
			t.Fatalf("%q: expected error", header)
		}
	}
}
