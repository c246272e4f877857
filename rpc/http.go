package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"zkusd/crypto"
	"zkusd/native/vault"
	"zkusd/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeVaultNotFound  = -32040
	codeOracleInvalid  = -32041
	codeSolvency       = -32042
	codeInsufficient   = -32043
	codeInteraction    = -32044
)

// Server exposes the vault engine over JSON-RPC 2.0.
type Server struct {
	engine  *vault.Engine
	logger  *slog.Logger
	metrics *observability.VaultMetrics

	authTokens    []string
	limitPerMin   int
	defaultOracle crypto.Address

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer constructs an RPC server around the engine. When authTokens is
// non-empty every mutating method requires a matching bearer token.
func NewServer(engine *vault.Engine, logger *slog.Logger, authTokens []string, limitPerMin int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tokens := make([]string, 0, len(authTokens))
	for _, token := range authTokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return &Server{
		engine:      engine,
		logger:      logger,
		metrics:     observability.Vault(),
		authTokens:  tokens,
		limitPerMin: limitPerMin,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// SetDefaultOracle sets the oracle signer used by vault_create when the
// caller does not supply one.
func (s *Server) SetDefaultOracle(addr crypto.Address) {
	s.defaultOracle = addr
}

// Router builds the HTTP routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/", s.handle)
	return r
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
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !s.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	started := time.Now()
	s.dispatch(w, r, &req)
	s.metrics.RPCLatency.WithLabelValues(methodLabel(req.Method)).Observe(time.Since(started).Seconds())
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.authTokens) == 0 {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	for _, token := range s.authTokens {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) allow(source string) bool {
	if s.limitPerMin <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.limitPerMin)/60.0), s.limitPerMin)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
