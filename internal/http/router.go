package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/scribe/internal/service/auth"
	"github.com/splax/scribe/internal/service/transcription"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	handler        http.Handler
	logger         *slog.Logger
	auth           auth.Service
	transcriptions transcription.Service
	limiter        RateLimiter
	metrics        *metrics
	cors           corsPolicy
	maxUpload      int64
	dbHealth       func(context.Context) error
	proxies        trustedProxies
}

// Options carries optional router settings.
type Options struct {
	// MaxUploadBytes caps the multipart body of /upload-audio.
	MaxUploadBytes int64
	// CORSAllowedOrigins lists allowed browser origins; "*" allows any.
	CORSAllowedOrigins []string
	// DBHealth is checked by /healthz when set.
	DBHealth func(context.Context) error
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For is honoured.
	TrustedProxies []string
	// Registerer receives the router metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer
}

const (
	rateWindowDefault   = time.Minute
	rateLimitSignIn     = 5
	rateLimitLogin      = 12
	rateLimitUpload     = 30
	rateLimitUserRead   = 120
	healthCheckTimeout  = 2 * time.Second
	defaultMaxUpload    = 25 << 20
	maxCredentialsBytes = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, transcriptionSvc transcription.Service, limiter RateLimiter, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:            http.NewServeMux(),
		logger:         logger,
		auth:           authSvc,
		transcriptions: transcriptionSvc,
		limiter:        limiter,
		metrics:        newMetrics(reg),
		cors:           newCORSPolicy(opts.CORSAllowedOrigins),
		maxUpload:      opts.MaxUploadBytes,
		dbHealth:       opts.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.maxUpload <= 0 {
		r.maxUpload = defaultMaxUpload
	}
	proxies, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		logger.Error("ignoring trusted proxies", "error", err)
	}
	r.proxies = proxies
	r.register(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.handler = r.withCORS(r.mux)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register(metricsHandler http.Handler) {
	r.mux.HandleFunc("/{$}", r.audit("/", r.handleRoot))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", metricsHandler)
	r.mux.HandleFunc("/sign-in", r.audit("/sign-in", r.withRateLimit("/sign-in", rateLimitSignIn, rateWindowDefault, r.rateLimitKeyIP, r.handleSignIn)))
	r.mux.HandleFunc("/login", r.audit("/login", r.withRateLimit("/login", rateLimitLogin, rateWindowDefault, r.rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/upload-audio", r.audit("/upload-audio", r.handlerAuthRate("/upload-audio", rateLimitUpload, rateWindowDefault, r.handleUploadAudio)))
	r.mux.HandleFunc("/transcriptions", r.audit("/transcriptions", r.handlerAuthRate("/transcriptions", rateLimitUserRead, rateWindowDefault, r.handleTranscriptions)))
	r.mux.HandleFunc("/", r.audit("unmatched", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	writeText(w, http.StatusOK, "Backend is running")
}

func (r *Router) handleSignIn(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := r.auth.Register(req.Context(), payload.Name, payload.Email, payload.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeError(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, auth.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			r.logger.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create user")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully"})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "User doesn't exist")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "Password didn't match")
		case errors.Is(err, auth.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			r.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to log in")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwtToken": token})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, req.Body, maxCredentialsBytes)).Decode(v)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := r.proxies.clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
