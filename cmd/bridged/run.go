package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"valuebridge/internal/api"
	"valuebridge/internal/audit"
	"valuebridge/internal/cache"
	"valuebridge/internal/chain"
	"valuebridge/internal/config"
	"valuebridge/internal/confirm"
	"valuebridge/internal/contract"
	"valuebridge/internal/metrics"
	"valuebridge/internal/model"
	"valuebridge/internal/notify"
	"valuebridge/internal/pipeline"
	"valuebridge/internal/registry"
	"valuebridge/internal/transfer"
	"valuebridge/internal/watch"
)

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	sink, closeSink, err := buildAuditSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	runners := map[string]*pipeline.Runner{
		model.WorkflowStakeAndMint: pipeline.NewRunner(pipeline.NewStakeAndMint(pipeline.StakeAndMintDeps{
			Value:         svc.valueGW,
			Utility:       svc.utilityGW,
			Resolve:       svc.claimResolver(),
			StakerAccount: svc.staker,
		}), svc.notifier, svc.metrics, sink, logger),
		model.WorkflowRedeemAndUnstake: pipeline.NewRunner(pipeline.NewRedeemAndUnstake(pipeline.RedeemAndUnstakeDeps{
			Value:           svc.valueGW,
			Utility:         svc.utilityGW,
			RedeemerAccount: svc.redeemer,
		}), svc.notifier, svc.metrics, sink, logger),
		model.WorkflowRegisterToken: pipeline.NewRunner(pipeline.NewRegisterToken(pipeline.RegisterTokenDeps{
			Value:   svc.valueGW,
			Utility: svc.utilityGW,
		}), svc.notifier, svc.metrics, sink, logger),
	}

	queue := confirm.NewQueue(confirm.Config{
		Delay:  cfg.ConfirmationDelay,
		Buffer: cfg.EventBuffer,
	}, svc.notifier, svc.metrics, logger)
	queue.SetProcessor(func(ctx context.Context, ev model.RawEvent) error {
		intent, err := pipeline.IntentFromEvent(ev)
		if err != nil {
			return err
		}
		runner, ok := runners[intent.Workflow]
		if !ok {
			return fmt.Errorf("no runner for workflow %s", intent.Workflow)
		}
		result := runner.Run(ctx, intent)
		if !result.Succeeded() {
			return fmt.Errorf("workflow %s key %s finished %s (%s)",
				result.Workflow, result.Key, result.Status, result.ErrCode)
		}
		return nil
	})

	decoder, err := contract.NewTriggerDecoder()
	if err != nil {
		return err
	}

	valueWatcher := watch.NewWatcher(watch.RunConfig{
		FromBlock:         cfg.ValueFromBlock,
		Addresses:         []common.Address{svc.valueGW.Address()},
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.ValueCheckpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, svc.value, decoder, queue, logger.Named("value"))

	utilityWatcher := watch.NewWatcher(watch.RunConfig{
		FromBlock:         cfg.UtilityFromBlock,
		Addresses:         []common.Address{svc.utilityGW.Address()},
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.UtilityCheckpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, svc.utility, decoder, queue, logger.Named("utility"))

	server := api.NewServer(svc.transfers, svc.resolve, svc.balances, svc.registryGatherer, logger)

	logger.Info("facilitator start",
		zap.String("value_rpc", cfg.ValueRPCURL),
		zap.String("utility_rpc", cfg.UtilityRPCURL),
		zap.String("value_gateway", svc.valueGW.Address().Hex()),
		zap.String("utility_gateway", svc.utilityGW.Address().Hex()),
		zap.Duration("confirmation_delay", cfg.ConfirmationDelay),
		zap.String("listen", cfg.ListenAddr),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errC := make(chan error, 4)
	go func() { errC <- queue.Run(runCtx) }()
	go func() { errC <- valueWatcher.Run(runCtx) }()
	go func() { errC <- utilityWatcher.Run(runCtx) }()
	go func() { errC <- serveHTTP(runCtx, cfg.ListenAddr, server.Handler()) }()

	var firstErr error
	for i := 0; i < 4; i++ {
		err := <-errC
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	svc.transfers.Wait()
	return firstErr
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

func buildAuditSink(ctx context.Context, cfg config.Config) (audit.Sink, func(), error) {
	if cfg.AuditDSN != "" {
		sink, err := audit.NewPostgresSink(ctx, cfg.AuditDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("audit sink: %w", err)
		}
		return sink, sink.Close, nil
	}
	if cfg.AuditPath != "" {
		return audit.NewJsonlSink(cfg.AuditPath), func() {}, nil
	}
	return audit.Discard{}, func() {}, nil
}

// services bundles the wiring shared by the daemon and the API-only server.
type services struct {
	value   *chain.Client
	utility *chain.Client

	valueGW   *contract.ValueGateway
	utilityGW *contract.UtilityGateway
	tokens    *registry.Registry

	staker   common.Address
	redeemer common.Address
	reserve  common.Address

	balances  *cache.Cache
	transfers *transfer.Service
	resolve   transfer.ResolveTokenFunc

	notifier         notify.Notifier
	metrics          *metrics.Metrics
	registryGatherer *prometheus.Registry

	closers []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *services) claimResolver() pipeline.ResolveTokenFunc {
	return func(ctx context.Context, uuid common.Hash) (pipeline.TokenClaimer, error) {
		return s.tokens.TokenByUUID(ctx, uuid)
	}
}

func buildServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services, error) {
	if cfg.ValueRPCURL == "" || cfg.UtilityRPCURL == "" {
		return nil, fmt.Errorf("value-rpc and utility-rpc are required")
	}
	valueGWAddr, err := parseAddress("value-gateway", cfg.ValueGateway)
	if err != nil {
		return nil, err
	}
	utilityGWAddr, err := parseAddress("utility-gateway", cfg.UtilityGateway)
	if err != nil {
		return nil, err
	}
	staker, err := parseAddress("staker", cfg.StakerAddress)
	if err != nil {
		return nil, err
	}
	redeemer, err := parseAddress("redeemer", cfg.RedeemerAddress)
	if err != nil {
		return nil, err
	}
	reserve, err := parseAddress("reserve", cfg.ReserveAddress)
	if err != nil {
		return nil, err
	}
	gasPrice, ok := new(big.Int).SetString(cfg.GasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("gas-price %q is not a decimal integer", cfg.GasPrice)
	}

	svc := &services{
		staker:   staker,
		redeemer: redeemer,
		reserve:  reserve,
	}

	receipts := chain.ReceiptConfig{Interval: cfg.ReceiptInterval, Attempts: cfg.ReceiptAttempts}
	svc.value, err = chain.NewClient(ctx, cfg.ValueRPCURL, receipts)
	if err != nil {
		return nil, fmt.Errorf("connect value rpc: %w", err)
	}
	svc.closers = append(svc.closers, svc.value.Close)

	svc.utility, err = chain.NewClient(ctx, cfg.UtilityRPCURL, receipts)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("connect utility rpc: %w", err)
	}
	svc.closers = append(svc.closers, svc.utility.Close)

	svc.value.RegisterAccount(staker, cfg.StakerPassphrase)
	svc.utility.RegisterAccount(redeemer, cfg.RedeemerPassphrase)
	svc.utility.RegisterAccount(reserve, cfg.ReservePassphrase)

	svc.valueGW, err = contract.NewValueGateway(svc.value, valueGWAddr, contract.TxOpts{
		From:     staker,
		GasPrice: gasPrice,
		Gas:      cfg.GasLimit,
	}, logger)
	if err != nil {
		svc.close()
		return nil, err
	}

	svc.utilityGW, err = contract.NewUtilityGateway(svc.utility, utilityGWAddr, contract.TxOpts{
		From:     redeemer,
		GasPrice: gasPrice,
		Gas:      cfg.GasLimit,
	}, logger)
	if err != nil {
		svc.close()
		return nil, err
	}

	svc.tokens = registry.New(svc.utilityGW, svc.utility, contract.TxOpts{
		From:     reserve,
		GasPrice: gasPrice,
		Gas:      cfg.GasLimit,
	}, logger)

	bindings, err := config.ParseTokens(cfg.Tokens)
	if err != nil {
		svc.close()
		return nil, err
	}
	for _, binding := range bindings {
		token, err := svc.tokens.TokenByUUID(ctx, common.HexToHash(binding.UUID))
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("token %s: %w", binding.Symbol, err)
		}
		svc.tokens.RegisterSymbol(binding.Symbol, token)
	}

	backend, closeBackend, err := buildCacheBackend(ctx, cfg)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.closers = append(svc.closers, closeBackend)
	svc.balances = cache.New(backend, logger)

	svc.registryGatherer = prometheus.NewRegistry()
	svc.metrics = metrics.New(svc.registryGatherer)
	svc.notifier = notify.NewLogEmitter(logger)

	svc.resolve = func(symbol string) (transfer.Token, bool) {
		token, ok := svc.tokens.TokenBySymbol(symbol)
		if !ok {
			return nil, false
		}
		return token, true
	}
	svc.transfers = transfer.NewService(transfer.Config{
		ReserveAccount: reserve,
		GasPrice:       gasPrice,
	}, svc.resolve, svc.utility, svc.balances, svc.notifier, svc.metrics, logger)

	return svc, nil
}

func buildCacheBackend(ctx context.Context, cfg config.Config) (cache.Backend, func(), error) {
	if cfg.CacheDSN == "" {
		return cache.NewMemoryBackend(), func() {}, nil
	}
	backend, err := cache.NewPostgresBackend(ctx, cfg.CacheDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("cache backend: %w", err)
	}
	return backend, backend.Close, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s %q is not a hex address", name, value)
	}
	return common.HexToAddress(value), nil
}
