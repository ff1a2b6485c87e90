package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"valuebridge/internal/cache"
	"valuebridge/internal/model"
	"valuebridge/internal/transfer"
)

// Server is the HTTP front door: optimistic token transfers and cached
// balance reads.
type Server struct {
	transfers *transfer.Service
	resolve   transfer.ResolveTokenFunc
	balances  *cache.Cache
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// NewServer builds the HTTP server over its services.
func NewServer(transfers *transfer.Service, resolve transfer.ResolveTokenFunc, balances *cache.Cache, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		transfers: transfers,
		resolve:   resolve,
		balances:  balances,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/token/{symbol}", func(r chi.Router) {
		r.Post("/transfer", s.handleTransfer)
		r.Get("/balance/{address}", s.handleBalance)
	})

	return r
}

type transferBody struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var body transferBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "malformed request body")
		return
	}
	if !common.IsHexAddress(body.From) || !common.IsHexAddress(body.To) {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "from and to must be hex addresses")
		return
	}
	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "amount must be a decimal integer")
		return
	}

	ticket, err := s.transfers.Execute(r.Context(), model.TransferRequest{
		Symbol: symbol,
		From:   common.HexToAddress(body.From),
		To:     common.HexToAddress(body.To),
		Amount: amount,
	})
	if err != nil {
		var reqErr *transfer.RequestError
		if errors.As(err, &reqErr) {
			s.writeError(w, statusFor(reqErr.Code), reqErr.Code, reqErr.Error())
			return
		}
		s.logger.Error("transfer failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeRemoteCall, "transfer failed")
		return
	}

	s.writeData(w, http.StatusOK, ticket)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	address := chi.URLParam(r, "address")

	if !common.IsHexAddress(address) {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "address must be a hex address")
		return
	}
	token, ok := s.resolve(symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, model.ErrCodeValidation, "unknown token symbol")
		return
	}

	owner := common.HexToAddress(address)
	key := cache.BalanceKey(symbol, "token", owner.Hex())
	balance, err := s.balances.GetBalanceOf(r.Context(), key, func(ctx context.Context) (*big.Int, error) {
		return token.BalanceOf(ctx, owner)
	})
	if err != nil {
		s.logger.Error("balance read failed", zap.String("key", key), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, model.ErrCodeRemoteCall, "balance read failed")
		return
	}

	s.writeData(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func statusFor(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeInsufficientFunds:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Err     *apiError   `json:"err,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, envelope{Success: false, Err: &apiError{Code: code, Msg: msg}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}
