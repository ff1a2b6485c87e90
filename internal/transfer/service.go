package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"valuebridge/internal/cache"
	"valuebridge/internal/chain"
	"valuebridge/internal/metrics"
	"valuebridge/internal/model"
	"valuebridge/internal/notify"
)

// Token is the branded-token surface a transfer needs.
type Token interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) (*types.Receipt, error)
}

// ResolveTokenFunc maps a configured symbol to its token binding.
type ResolveTokenFunc func(symbol string) (Token, bool)

// RequestError is a transfer rejection carrying its error-taxonomy code.
type RequestError struct {
	Code string
	Err  error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func requestErr(code string, format string, args ...interface{}) *RequestError {
	return &RequestError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Config tunes the transfer service.
type Config struct {
	// ReserveAccount funds gas-starved senders before submission.
	ReserveAccount common.Address
	// GasRefill is the base-currency amount granted to a gas-starved
	// sender, and also the threshold below which a sender counts as
	// starved.
	GasRefill *big.Int
	// GasPrice and Gas apply to the refill transfer itself.
	GasPrice *big.Int
	Gas      uint64
}

func (cfg *Config) applyDefaults() {
	if cfg.GasRefill == nil {
		// 0.05 in 18-decimal base units.
		cfg.GasRefill = new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	}
	if cfg.Gas == 0 {
		cfg.Gas = 21000
	}
}

// Service executes branded-token transfers optimistically: the sender's
// cached balance is debited and a ticket returned before the chain
// submission settles. A failed submission credits the debit back, so the
// cached total across both holders is conserved either way.
type Service struct {
	cfg      Config
	resolve  ResolveTokenFunc
	gateway  chain.Gateway
	balances *cache.Cache
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	wg sync.WaitGroup

	mu   sync.Mutex
	done func(model.TransferOutcome)
}

// NewService builds a transfer service.
func NewService(cfg Config, resolve ResolveTokenFunc, gateway chain.Gateway, balances *cache.Cache, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		cfg:      cfg,
		resolve:  resolve,
		gateway:  gateway,
		balances: balances,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// OnOutcome installs a hook invoked with every terminal transfer outcome.
func (s *Service) OnOutcome(fn func(model.TransferOutcome)) {
	s.mu.Lock()
	s.done = fn
	s.mu.Unlock()
}

// Wait blocks until every in-flight submission has reached a terminal
// outcome. Used during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Execute validates and optimistically accepts a transfer. On return the
// sender's cached balance is already debited and the chain submission runs
// asynchronously under the ticket's transaction uuid. The passed context
// only covers validation and the cache read; the submission carries its own.
func (s *Service) Execute(ctx context.Context, req model.TransferRequest) (model.TransferTicket, error) {
	if err := validate(req); err != nil {
		return model.TransferTicket{}, err
	}

	token, ok := s.resolve(req.Symbol)
	if !ok {
		return model.TransferTicket{}, requestErr(model.ErrCodeValidation, "unknown token symbol %q", req.Symbol)
	}

	senderKey := cache.BalanceKey(req.Symbol, "token", req.From.Hex())
	balance, err := s.balances.GetBalanceOf(ctx, senderKey, func(ctx context.Context) (*big.Int, error) {
		return token.BalanceOf(ctx, req.From)
	})
	if err != nil {
		return model.TransferTicket{}, requestErr(model.ErrCodeRemoteCall, "read sender balance: %v", err)
	}
	if balance.Cmp(req.Amount) < 0 {
		return model.TransferTicket{}, requestErr(model.ErrCodeInsufficientFunds,
			"balance %s cannot cover transfer of %s", balance, req.Amount)
	}

	// Warm the recipient entry so settlement credits an existing value
	// instead of invalidating.
	recipientKey := cache.BalanceKey(req.Symbol, "token", req.To.Hex())
	if _, err := s.balances.GetBalanceOf(ctx, recipientKey, func(ctx context.Context) (*big.Int, error) {
		return token.BalanceOf(ctx, req.To)
	}); err != nil {
		return model.TransferTicket{}, requestErr(model.ErrCodeRemoteCall, "read recipient balance: %v", err)
	}

	if _, err := s.balances.Debit(ctx, senderKey, req.Amount); err != nil {
		if errors.Is(err, cache.ErrInsufficient) {
			return model.TransferTicket{}, requestErr(model.ErrCodeInsufficientFunds, "debit sender: %v", err)
		}
		return model.TransferTicket{}, requestErr(model.ErrCodeRemoteCall, "debit sender: %v", err)
	}

	ticket := model.TransferTicket{TransactionUUID: uuid.NewString()}
	s.metrics.TransfersInitiated.Inc()
	s.logger.Info("transfer accepted",
		zap.String("transaction_uuid", ticket.TransactionUUID),
		zap.String("symbol", req.Symbol),
		zap.String("from", req.From.Hex()),
		zap.String("to", req.To.Hex()),
		zap.String("amount", req.Amount.String()),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.submit(context.Background(), token, req, ticket.TransactionUUID, senderKey)
	}()

	return ticket, nil
}

func validate(req model.TransferRequest) error {
	if req.Symbol == "" {
		return requestErr(model.ErrCodeValidation, "symbol is required")
	}
	if req.From == (common.Address{}) || req.To == (common.Address{}) {
		return requestErr(model.ErrCodeValidation, "from and to addresses are required")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return requestErr(model.ErrCodeValidation, "amount must be positive")
	}
	return nil
}

// submit drives one accepted transfer to a terminal outcome.
func (s *Service) submit(ctx context.Context, token Token, req model.TransferRequest, txUUID, senderKey string) {
	if err := s.ensureGas(ctx, req.From); err != nil {
		s.revert(ctx, req, txUUID, senderKey, err)
		return
	}

	receipt, err := token.Transfer(ctx, req.From, req.To, req.Amount)
	if err != nil {
		s.revert(ctx, req, txUUID, senderKey, requestErr(model.ErrCodeRemoteCall, "submit transfer: %v", err))
		return
	}

	s.settle(ctx, req, txUUID, receipt)
}

// ensureGas tops up a gas-starved sender from the reserve account. The
// reserve itself cannot be topped up; a starved reserve is terminal.
func (s *Service) ensureGas(ctx context.Context, from common.Address) *RequestError {
	balance, err := s.gateway.Balance(ctx, from)
	if err != nil {
		return requestErr(model.ErrCodeRemoteCall, "read gas balance: %v", err)
	}
	if balance.Cmp(s.cfg.GasRefill) >= 0 {
		return nil
	}
	if from == s.cfg.ReserveAccount {
		return requestErr(model.ErrCodeInsufficientGas, "reserve account %s is gas starved", from.Hex())
	}

	hash, err := s.gateway.Send(ctx, chain.SendRequest{
		From:     s.cfg.ReserveAccount,
		To:       from,
		Value:    s.cfg.GasRefill,
		GasPrice: s.cfg.GasPrice,
		Gas:      s.cfg.Gas,
	})
	if err != nil {
		return requestErr(model.ErrCodeInsufficientGas, "fund sender gas: %v", err)
	}
	if _, err := s.gateway.WaitReceipt(ctx, hash); err != nil {
		return requestErr(model.ErrCodeInsufficientGas, "fund sender gas: %v", err)
	}

	s.logger.Info("sender gas funded",
		zap.String("from", s.cfg.ReserveAccount.Hex()),
		zap.String("to", from.Hex()),
		zap.String("amount", s.cfg.GasRefill.String()),
	)
	return nil
}

// settle finalizes a confirmed transfer: the recipient's cached balance is
// credited when present, and left for the next read-through fetch when not.
func (s *Service) settle(ctx context.Context, req model.TransferRequest, txUUID string, receipt *types.Receipt) {
	recipientKey := cache.BalanceKey(req.Symbol, "token", req.To.Hex())
	if _, err := s.balances.Credit(ctx, recipientKey, req.Amount); err != nil && !errors.Is(err, cache.ErrNotCached) {
		// The cached value can no longer be trusted; drop it and let the
		// next read repopulate from chain.
		s.logger.Warn("recipient credit failed, invalidating",
			zap.String("key", recipientKey), zap.Error(err))
		if err := s.balances.Invalidate(ctx, recipientKey); err != nil {
			s.logger.Error("recipient invalidate failed", zap.String("key", recipientKey), zap.Error(err))
		}
	}

	s.metrics.TransfersSettled.Inc()
	outcome := model.TransferOutcome{
		TransactionUUID: txUUID,
		TxHash:          receipt.TxHash.Hex(),
		Success:         true,
	}
	s.notifier.Publish(notify.Notification{
		Topics:    []string{"transfer.settled"},
		Publisher: "transfer",
		Kind:      notify.KindInfo,
		Payload:   map[string]interface{}{"transaction_uuid": txUUID, "tx_hash": outcome.TxHash},
	})
	s.logger.Info("transfer settled",
		zap.String("transaction_uuid", txUUID),
		zap.String("tx_hash", outcome.TxHash),
	)
	s.finish(outcome)
}

// revert compensates a failed submission by crediting the optimistic debit
// back to the sender.
func (s *Service) revert(ctx context.Context, req model.TransferRequest, txUUID, senderKey string, cause *RequestError) {
	if _, err := s.balances.Credit(ctx, senderKey, req.Amount); err != nil {
		s.logger.Error("compensating credit failed, invalidating",
			zap.String("key", senderKey), zap.Error(err))
		if err := s.balances.Invalidate(ctx, senderKey); err != nil {
			s.logger.Error("sender invalidate failed", zap.String("key", senderKey), zap.Error(err))
		}
	}

	s.metrics.TransfersReverted.Inc()
	outcome := model.TransferOutcome{
		TransactionUUID: txUUID,
		Success:         false,
		ErrCode:         cause.Code,
	}
	s.notifier.Publish(notify.Notification{
		Topics:    []string{"transfer.reverted"},
		Publisher: "transfer",
		Kind:      notify.KindError,
		Payload:   map[string]interface{}{"transaction_uuid": txUUID, "err_code": cause.Code},
	})
	s.logger.Warn("transfer reverted",
		zap.String("transaction_uuid", txUUID),
		zap.String("err_code", cause.Code),
		zap.Error(cause),
	)
	s.finish(outcome)
}

func (s *Service) finish(outcome model.TransferOutcome) {
	s.mu.Lock()
	fn := s.done
	s.mu.Unlock()
	if fn != nil {
		fn(outcome)
	}
}
