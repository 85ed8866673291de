package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"edugrants/native/grants"
)

// Reader is the read-only engine surface the gateway exposes.
type Reader interface {
	Get(id uint64) (*grants.Program, error)
	Fee() (uint32, error)
}

type programResponse struct {
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

type feeResponse struct {
	FeeBps uint32 `json:"feeBps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the read-only REST router over the grants engine.
func New(reader Reader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/grants/fee", func(w http.ResponseWriter, req *http.Request) {
		fee, err := reader.Fee()
		if err != nil {
			logger.Error("fee lookup failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, feeResponse{FeeBps: fee})
	})

	r.Get("/v1/grants/programs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid program id"})
			return
		}
		program, err := reader.Get(id)
		if err != nil {
			if errors.Is(err, grants.ErrProgramNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "program not found"})
				return
			}
			logger.Error("program lookup failed", slog.Uint64("id", id), slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, marshalProgram(program))
	})

	return r
}

func marshalProgram(p *grants.Program) programResponse {
	price := "0"
	if p.Price != nil {
		price = p.Price.String()
	}
	out := programResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Maker:     hexAddress(p.Maker),
		Validator: hexAddress(p.Validator),
		Approved:  p.Approved,
		Claimed:   p.Claimed,
		CreatedAt: p.CreatedAt,
	}
	if p.Builder != ([20]byte{}) {
		builder := hexAddress(p.Builder)
		out.Builder = &builder
	}
	return out
}

func hexAddress(addr [20]byte) string {
	return common.BytesToAddress(addr[:]).Hex()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
