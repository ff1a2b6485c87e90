package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"valuebridge/internal/chain"
	"valuebridge/internal/contract"
)

// Registry resolves branded token uuids and symbols to contract bindings,
// caching resolved bindings by uuid.
type Registry struct {
	gateway *contract.UtilityGateway
	gw      chain.Gateway
	opts    contract.TxOpts
	logger  *zap.Logger

	mu       sync.RWMutex
	byUUID   map[common.Hash]*contract.BrandedToken
	bySymbol map[string]*contract.BrandedToken
}

// New builds a registry resolving through the utility gateway's registrar.
func New(gateway *contract.UtilityGateway, gw chain.Gateway, opts contract.TxOpts, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		gateway:  gateway,
		gw:       gw,
		opts:     opts,
		logger:   logger,
		byUUID:   make(map[common.Hash]*contract.BrandedToken),
		bySymbol: make(map[string]*contract.BrandedToken),
	}
}

// TokenByUUID returns the binding for a registered token uuid, resolving it
// through the registrar on first use.
func (r *Registry) TokenByUUID(ctx context.Context, uuid common.Hash) (*contract.BrandedToken, error) {
	r.mu.RLock()
	token, ok := r.byUUID[uuid]
	r.mu.RUnlock()
	if ok {
		return token, nil
	}

	address, err := r.gateway.TokenByUUID(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("resolve uuid %s: %w", uuid.Hex(), err)
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("uuid %s is not a registered token", uuid.Hex())
	}

	token, err = contract.NewBrandedToken(r.gw, address, r.opts, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.byUUID[uuid]; ok {
		token = existing
	} else {
		r.byUUID[uuid] = token
	}
	r.mu.Unlock()

	r.logger.Debug("token resolved", zap.String("uuid", uuid.Hex()), zap.String("address", address.Hex()))
	return token, nil
}

// IsRegistered reports whether uuid resolves to a token contract.
func (r *Registry) IsRegistered(ctx context.Context, uuid common.Hash) bool {
	_, err := r.TokenByUUID(ctx, uuid)
	return err == nil
}

// RegisterSymbol associates a symbol with a token binding for the API layer.
func (r *Registry) RegisterSymbol(symbol string, token *contract.BrandedToken) {
	r.mu.Lock()
	r.bySymbol[strings.ToUpper(symbol)] = token
	r.mu.Unlock()
}

// TokenBySymbol returns the binding for a configured token symbol.
func (r *Registry) TokenBySymbol(symbol string) (*contract.BrandedToken, bool) {
	r.mu.RLock()
	token, ok := r.bySymbol[strings.ToUpper(symbol)]
	r.mu.RUnlock()
	return token, ok
}
