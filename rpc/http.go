// Package rpc serves the node's JSON-RPC surface: transaction submission and
// read access to ledger records, escrow records and token accounts.
package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"escrowchain/config"
	"escrowchain/core/ledger"
	"escrowchain/observability/logging"
	"escrowchain/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	shutdownTimeout = 10 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

type methodFunc func(r *http.Request, req *RPCRequest) (interface{}, *RPCError)

type method struct {
	fn   methodFunc
	auth bool
}

type Server struct {
	ledger    *ledger.Ledger
	logger    *slog.Logger
	cfg       config.RPC
	authToken string
	limiter   *RateLimiter
	metrics   *metrics.RPCMetrics
	methods   map[string]method
}

// NewServer builds a server over l. The submission token is read from the
// environment variable named by cfg.AuthTokenEnv; without it submissions are
// refused.
func NewServer(l *ledger.Ledger, cfg config.RPC, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		ledger:    l,
		logger:    logger.With("component", "rpc"),
		cfg:       cfg,
		authToken: strings.TrimSpace(os.Getenv(cfg.AuthTokenEnv)),
		limiter:   NewRateLimiter(RateLimit{RequestsPerMinute: float64(cfg.RateLimitPerMinute), Burst: cfg.RateLimitBurst}, cfg.TrustProxyHeaders),
		metrics:   metrics.RPC(),
	}
	s.methods = map[string]method{
		"ledger_sendTransaction": {fn: s.handleSendTransaction, auth: true},
		"ledger_getReceipt":      {fn: s.handleGetReceipt},
		"ledger_getAccount":      {fn: s.handleGetAccount},
		"escrow_getEscrow":       {fn: s.handleGetEscrow},
		"token_getAccount":       {fn: s.handleGetTokenAccount},
	}
	return s
}

// Handler returns the routed HTTP handler. JSON-RPC is accepted on "/" and
// "/rpc".
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(rpc chi.Router) {
		rpc.Use(s.limiter.Middleware(s.rejectThrottled))
		rpc.Post("/", s.handle)
		rpc.Post("/rpc", s.handle)
	})
	return otelhttp.NewHandler(r, "escrowd.rpc")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeoutDuration(),
		ReadTimeout:       s.cfg.ReadTimeoutDuration(),
		WriteTimeout:      s.cfg.WriteTimeoutDuration(),
		IdleTimeout:       s.cfg.IdleTimeoutDuration(),
	}
	s.logger.Info("starting JSON-RPC server",
		"addr", addr,
		logging.MaskField("auth_token", s.authToken),
		"rate_limit_per_minute", s.cfg.RateLimitPerMinute)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("stopping JSON-RPC server")
		return srv.Shutdown(shutdownCtx)
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func newRPCError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) rejectThrottled(w http.ResponseWriter, r *http.Request, client string) {
	s.metrics.RecordThrottle("rate_limit")
	s.logger.Warn("request rate limited", "client", client, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		s.metrics.Observe("", codeInvalidRequest, time.Since(start))
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		s.metrics.Observe("", codeInvalidRequest, time.Since(start))
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		s.metrics.Observe("", codeParseError, time.Since(start))
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		s.metrics.Observe(req.Method, codeInvalidRequest, time.Since(start))
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		s.metrics.Observe("", codeInvalidRequest, time.Since(start))
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		s.metrics.Observe("unknown", codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	if m.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.RecordThrottle("unauthorized")
			s.metrics.Observe(req.Method, authErr.Code, time.Since(start))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, rpcErr := m.fn(r, req)
	if rpcErr != nil {
		s.metrics.Observe(req.Method, rpcErr.Code, time.Since(start))
		if rpcErr.Code == codeServerError {
			s.logger.Error("rpc handler failed",
				"method", req.Method,
				"request_id", RequestIDFromContext(r.Context()),
				"error", rpcErr.Data)
		}
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.metrics.Observe(req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
