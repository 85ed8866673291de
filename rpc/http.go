package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"edugrants/audit"
	"edugrants/core/state"
	"edugrants/native/grants"
	"edugrants/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "EDUGRANTS_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

const (
	codeGrantsInvalidParams = -32021
	codeGrantsNotFound      = -32022
	codeGrantsForbidden     = -32023
	codeGrantsConflict      = -32024
	codeGrantsTransfer      = -32025
	codeGrantsInternal      = -32026
)

// Server exposes the grants engine over HTTP JSON-RPC 2.0. Mutating methods
// require a bearer token when EDUGRANTS_RPC_TOKEN is set; an empty token
// leaves the write surface open (local development only).
type Server struct {
	engine    *grants.Engine
	ledger    *state.Ledger
	journal   *audit.Store
	logger    *slog.Logger
	metrics   *observability.GrantsMetrics
	authToken string
}

// NewServer wires the RPC surface. The journal may be nil; grants_listEvents
// then reports an internal error instead of history.
func NewServer(engine *grants.Engine, ledger *state.Ledger, journal *audit.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		ledger:    ledger,
		journal:   journal,
		logger:    logger,
		metrics:   observability.Metrics(),
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the JSON-RPC endpoint on the supplied address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request body too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	switch req.Method {
	case "grants_create":
		s.handleCreate(w, r, &req)
	case "grants_approve":
		s.handleApprove(w, r, &req)
	case "grants_claim":
		s.handleClaim(w, r, &req)
	case "grants_reclaim":
		s.handleReclaim(w, r, &req)
	case "grants_updateValidator":
		s.handleUpdateValidator(w, r, &req)
	case "grants_setFee":
		s.handleSetFee(w, r, &req)
	case "grants_getFee":
		s.handleGetFee(w, r, &req)
	case "grants_get":
		s.handleGet(w, r, &req)
	case "grants_listEvents":
		s.handleListEvents(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

// writeEngineError maps an engine failure onto the module error-code space
// so callers can assert on the exact cause.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, method string, err error) {
	status := http.StatusInternalServerError
	code := codeGrantsInternal
	message := "internal_error"
	category := "unknown"
	switch grants.Classify(err) {
	case grants.CategoryNotFound:
		status, code, message, category = http.StatusNotFound, codeGrantsNotFound, "not_found", "not_found"
	case grants.CategoryValidation:
		status, code, message, category = http.StatusBadRequest, codeGrantsInvalidParams, "invalid_params", "validation"
	case grants.CategoryAuthorization:
		status, code, message, category = http.StatusForbidden, codeGrantsForbidden, "forbidden", "authorization"
	case grants.CategoryState:
		status, code, message, category = http.StatusConflict, codeGrantsConflict, "conflict", "state"
	case grants.CategoryTransfer:
		status, code, message, category = http.StatusConflict, codeGrantsTransfer, "transfer_failed", "transfer"
	}
	s.metrics.ObserveError(method, category)
	writeError(w, status, req.ID, code, message, err.Error())
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	writeResponse(w, http.StatusOK, RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	writeResponse(w, status, RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

func writeResponse(w http.ResponseWriter, status int, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "rpc: failed to encode response: %v\n", err)
	}
}
