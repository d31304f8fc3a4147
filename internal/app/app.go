package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/actor"
	"guardian-amm/internal/alerting"
	"guardian-amm/internal/attacksim"
	"guardian-amm/internal/chain"
	"guardian-amm/internal/config"
	"guardian-amm/internal/decider"
	"guardian-amm/internal/eventstore"
	"guardian-amm/internal/filter"
	"guardian-amm/internal/httpapi"
	"guardian-amm/internal/observer"
	"guardian-amm/internal/reasoner"
	"guardian-amm/internal/reasoner/llmclient"
	"guardian-amm/internal/restore"
	"guardian-amm/internal/scheduler"
	"guardian-amm/internal/service"
	"guardian-amm/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) chainAddresses() chain.Addresses {
	return chain.Addresses{
		WETH:   common.HexToAddress(a.Config.Chain.WETH),
		USDC:   common.HexToAddress(a.Config.Chain.USDC),
		Oracle: common.HexToAddress(a.Config.Chain.Oracle),
		AMM:    common.HexToAddress(a.Config.Chain.AMM),
		Vault:  common.HexToAddress(a.Config.Chain.Vault),
	}
}

func (a *App) newChainAdapter(ctx context.Context) (*chain.Adapter, error) {
	gasCap := new(big.Int)
	if a.Config.Chain.GasCapWei != "" {
		if _, ok := gasCap.SetString(a.Config.Chain.GasCapWei, 10); !ok {
			return nil, fmt.Errorf("chain.gas_cap_wei %q is not a valid integer", a.Config.Chain.GasCapWei)
		}
	}

	return chain.New(ctx, chain.Options{
		RPCURL:      a.Config.Chain.RPCURL,
		SignerKey:   a.Config.Chain.SignerKey,
		Addresses:   a.chainAddresses(),
		GasCapWei:   gasCap,
		CallTimeout: a.Config.Chain.CallTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	var channels []alerting.Notifier
	for _, name := range a.Config.Alerting.Channels {
		if name == "telegram" && a.Config.Alerting.Telegram.Enabled {
			cfg := a.Config.Alerting.Telegram
			channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		}
	}
	if len(channels) == 0 {
		return nil
	}
	return alerting.NewMultiNotifier(a.Logger, channels...)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Storage.DSN == "" {
		return nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Storage)
	if err != nil {
		return nil, err
	}

	return storage.NewStore(pool), nil
}

// Run wires every component (Chain Adapter, Observer, Anomaly Filter,
// Reasoner, Decider, Actor, Restore Scheduler, Event Store, optional
// storage/alerting, and the HTTP/WebSocket API) and runs the
// monitoring service until a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("storage.dsn not configured; audit persistence disabled")
	} else {
		defer store.Close()
	}

	chainAdapter, err := a.newChainAdapter(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to connect to chain endpoint")
		return err
	}

	events := eventstore.New(a.Config.Events.StoreCapacity)

	obs := observer.New(chainAdapter, observer.Addresses{
		Oracle: common.HexToAddress(a.Config.Chain.Oracle),
		AMM:    common.HexToAddress(a.Config.Chain.AMM),
		Vault:  common.HexToAddress(a.Config.Chain.Vault),
	}, a.Logger)

	filt := filter.New(filter.Thresholds{
		PriceDeviationPct: decimal.NewFromFloat(a.Config.Filter.PriceDeviationThresholdPct),
		ExtremeMovePct:    decimal.NewFromFloat(a.Config.Filter.ExtremeMoveThresholdPct),
		LargeSwapWETH:     decimal.NewFromFloat(a.Config.Filter.LargeSwapWETH),
	})

	llm := llmclient.New(llmclient.Options{
		BaseURL: a.Config.LLM.BaseURL,
		APIKey:  a.Config.LLM.APIKey,
		Model:   a.Config.LLM.Model,
		Timeout: a.Config.LLM.CallTimeout,
	})
	reason := reasoner.New(llm, reasoner.Options{
		AnalyzedEventsCapacity: a.Config.Reasoner.AnalyzedEventsCapacity,
		CallTimeout:            a.Config.LLM.CallTimeout,
	}, a.Logger)

	dec := decider.New(decider.Thresholds{
		PauseConfidence:            a.Config.Decider.PauseConfidenceThreshold,
		BlockLiquidationConfidence: a.Config.Decider.BlockLiquidationConfidenceThreshold,
	})

	sched := scheduler.New(scheduler.Options{Interval: a.Config.Observer.PollInterval}, a.Logger)

	var actionStore storage.ActionStore
	var obsStore storage.ObservationStore
	var locker storage.AdvisoryLocker
	if store != nil {
		actionStore, obsStore, locker = store, store, store
	}

	svc := service.New(sched, obs, filt, reason, dec, events, service.Options{
		ActionStore: actionStore,
		ObsStore:    obsStore,
		Locker:      locker,
		LockKey:     a.Config.Storage.AdvisoryLockKey,
		Notifier:    a.newNotifier(),
	}, a.Logger)
	svc.SetBaseInterval(a.Config.Observer.PollInterval)

	act := actor.New(chainAdapter, actor.Addresses{
		AMM:   common.HexToAddress(a.Config.Chain.AMM),
		Vault: common.HexToAddress(a.Config.Chain.Vault),
	}, a.Logger, svc.OnActionComplete)
	svc.SetActor(act)

	restoreSched := restore.New(chainAdapter, restore.Addresses{
		AMM: common.HexToAddress(a.Config.Chain.AMM),
	}, restore.Options{
		Delay:               a.Config.Restore.DelaySec,
		RepauseAfterRestore: a.Config.Restore.RepauseAfterRestore,
	}, a.Logger, svc.OnRestoreComplete)
	svc.SetRestoreScheduler(restoreSched)

	sim := attacksim.New(chainAdapter, attacksim.Addresses{
		AMM:   common.HexToAddress(a.Config.Chain.AMM),
		Vault: common.HexToAddress(a.Config.Chain.Vault),
	}, attacksim.Options{}, a.Logger)

	apiServer := httpapi.New(events, sim, restoreSched, a.Logger)
	httpSrv := &http.Server{Addr: a.Config.HTTP.ListenAddr, Handler: apiServer}
	go func() {
		a.Logger.Info().Str("addr", a.Config.HTTP.ListenAddr).Msg("starting HTTP/WebSocket API")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("HTTP API server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit       int
	FromStorage bool
}
