package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"edugrants/native/grants"
)

type grantsCreateParams struct {
	Caller    string `json:"caller"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Validator string `json:"validator"`
	Value     string `json:"value"`
}

type grantsIDParams struct {
	ID uint64 `json:"id"`
}

type grantsActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type grantsApproveParams struct {
	ID      uint64 `json:"id"`
	Builder string `json:"builder"`
	Caller  string `json:"caller"`
}

type grantsUpdateValidatorParams struct {
	ID        uint64 `json:"id"`
	Validator string `json:"validator"`
	Caller    string `json:"caller"`
}

type grantsSetFeeParams struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"feeBps"`
}

type grantsListEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type grantsFeeResult struct {
	FeeBps uint32 `json:"feeBps"`
}

type programJSON struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	Price     string  `json:"price"`
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
	Maker     string  `json:"maker"`
	Validator string  `json:"validator"`
	Builder   *string `json:"builder,omitempty"`
	Approved  bool    `json:"approved"`
	Claimed   bool    `json:"claimed"`
	CreatedAt int64   `json:"createdAt"`
}

type grantsEventJSON struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func marshalProgram(p *grants.Program) programJSON {
	price := "0"
	if p.Price != nil {
		price = p.Price.String()
	}
	out := programJSON{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Maker:     common.BytesToAddress(p.Maker[:]).Hex(),
		Validator: common.BytesToAddress(p.Validator[:]).Hex(),
		Approved:  p.Approved,
		Claimed:   p.Claimed,
		CreatedAt: p.CreatedAt,
	}
	if p.Builder != ([20]byte{}) {
		builder := common.BytesToAddress(p.Builder[:]).Hex()
		out.Builder = &builder
	}
	return out
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("malformed address %q", value)
	}
	copy(addr[:], common.HexToAddress(trimmed).Bytes())
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], target)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	validator, err := parseAddress(params.Validator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	program, err := s.engine.Create(caller, params.Name, price, params.StartTime, params.EndTime, validator, value)
	if err != nil {
		s.writeEngineError(w, req, "grants_create", err)
		return
	}
	s.metrics.ObserveRequest("grants_create", "ok", start)
	writeResult(w, req.ID, marshalProgram(program))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsApproveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	builder, err := parseAddress(params.Builder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Approve(params.ID, builder, caller); err != nil {
		s.writeEngineError(w, req, "grants_approve", err)
		return
	}
	s.metrics.ObserveRequest("grants_approve", "ok", start)
	writeResult(w, req.ID, true)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Claim(params.ID, caller); err != nil {
		s.writeEngineError(w, req, "grants_claim", err)
		return
	}
	s.metrics.ObserveRequest("grants_claim", "ok", start)
	writeResult(w, req.ID, true)
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Reclaim(params.ID, caller); err != nil {
		s.writeEngineError(w, req, "grants_reclaim", err)
		return
	}
	s.metrics.ObserveRequest("grants_reclaim", "ok", start)
	writeResult(w, req.ID, true)
}

func (s *Server) handleUpdateValidator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsUpdateValidatorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	validator, err := parseAddress(params.Validator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.UpdateValidator(params.ID, validator, caller); err != nil {
		s.writeEngineError(w, req, "grants_updateValidator", err)
		return
	}
	s.metrics.ObserveRequest("grants_updateValidator", "ok", start)
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params grantsSetFeeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.SetFee(caller, params.FeeBps); err != nil {
		s.writeEngineError(w, req, "grants_setFee", err)
		return
	}
	s.metrics.ObserveRequest("grants_setFee", "ok", start)
	writeResult(w, req.ID, grantsFeeResult{FeeBps: params.FeeBps})
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	fee, err := s.engine.Fee()
	if err != nil {
		s.writeEngineError(w, req, "grants_getFee", err)
		return
	}
	s.metrics.ObserveRequest("grants_getFee", "ok", start)
	writeResult(w, req.ID, grantsFeeResult{FeeBps: fee})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params grantsIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
		return
	}
	program, err := s.engine.Get(params.ID)
	if err != nil {
		s.writeEngineError(w, req, "grants_get", err)
		return
	}
	s.metrics.ObserveRequest("grants_get", "ok", start)
	writeResult(w, req.ID, marshalProgram(program))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	if s.journal == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeGrantsInternal, "internal_error", "event journal not configured")
		return
	}
	params := grantsListEventsParams{}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", err.Error())
			return
		}
	} else if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeGrantsInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	limit := 100
	if params.Limit != nil {
		limit = *params.Limit
	}
	entries, err := s.journal.List(params.Prefix, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeGrantsInternal, "internal_error", err.Error())
		return
	}
	out := make([]grantsEventJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, grantsEventJSON{Sequence: entry.Sequence, Type: entry.Type, Attributes: entry.Attributes})
	}
	s.metrics.ObserveRequest("grants_listEvents", "ok", start)
	writeResult(w, req.ID, out)
}
