package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os/signal"
	"strings"
	"syscall"

	"basketfund/adapters"
	"basketfund/config"
	"basketfund/history"
	"basketfund/native/fund"
	"basketfund/native/token"
	"basketfund/observability/logging"
	"basketfund/server"
	"basketfund/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "fundd.yaml", "path to fundd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("fundd: load config: %v", err)
	}

	logger := logging.Setup("fundd", cfg.Environment, logging.Rotation{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.StatePath)
	if err != nil {
		log.Fatalf("fundd: open state db: %v", err)
	}
	defer db.Close()
	kv := storage.NewKV(db)

	dsn, err := history.FileDSN(cfg.HistoryPath)
	if err != nil {
		log.Fatalf("fundd: resolve history DSN: %v", err)
	}
	store, err := history.Open(dsn)
	if err != nil {
		log.Fatalf("fundd: open history: %v", err)
	}
	defer store.Close()

	clientOpts := adapters.Options{
		Timeout:           cfg.Venue.Timeout.Duration,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	venue, err := adapters.NewVenueClient(cfg.Venue.Endpoint, clientOpts)
	if err != nil {
		log.Fatalf("fundd: venue client: %v", err)
	}
	wrapper, err := adapters.NewWrapperClient(fallback(cfg.Venue.WrapperEndpoint, cfg.Venue.Endpoint), clientOpts)
	if err != nil {
		log.Fatalf("fundd: wrapper client: %v", err)
	}
	payer, err := adapters.NewPayerClient(fallback(cfg.Venue.PayerEndpoint, cfg.Venue.Endpoint), clientOpts)
	if err != nil {
		log.Fatalf("fundd: payer client: %v", err)
	}

	assets := make([]fund.Asset, 0, len(cfg.Basket.Assets))
	for _, asset := range cfg.Basket.Assets {
		assets = append(assets, fund.Asset{
			Symbol:  asset.Symbol,
			TokenID: asset.TokenID,
			PoolID:  asset.PoolID,
		})
	}

	ledger := token.NewLedger(kv)
	engine, err := fund.NewEngine(fund.Config{
		Ledger:       ledger,
		Exchange:     venue,
		Wrapper:      wrapper,
		Payer:        payer,
		State:        fund.NewState(kv),
		Basket:       fund.Basket{NativeToken: cfg.Basket.NativeToken, Assets: assets},
		VenueAccount: cfg.Venue.Account,
		Referral:     cfg.Venue.Referral,
	}, fund.WithRecorder(store), fund.WithLogger(logger))
	if err != nil {
		log.Fatalf("fundd: engine: %v", err)
	}

	if !engine.Initialized() {
		supplyRaw := strings.TrimSpace(cfg.Token.InitialSupply)
		if supplyRaw == "" {
			log.Fatalf("fundd: fund not initialized and token.initial_supply not configured")
		}
		supply, ok := new(big.Int).SetString(supplyRaw, 10)
		if !ok {
			log.Fatalf("fundd: invalid token.initial_supply %q", supplyRaw)
		}
		err := engine.Initialize(fund.Identities{
			Owner: cfg.Identities.Owner,
			Admin: cfg.Identities.Admin,
			Fund:  cfg.Identities.Fund,
		}, supply, token.Metadata{
			Name:     cfg.Token.Name,
			Symbol:   cfg.Token.Symbol,
			Decimals: cfg.Token.Decimals,
			Icon:     cfg.Token.Icon,
		})
		if err != nil {
			log.Fatalf("fundd: initialize fund: %v", err)
		}
	}

	auth, err := server.NewAuthenticator(server.AuthConfig{HMACSecret: cfg.AuthSecret}, logger)
	if err != nil {
		log.Fatalf("fundd: configure auth: %v", err)
	}
	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, engine, ledger, store, auth, logger)
	if err != nil {
		log.Fatalf("fundd: server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("fundd: server exited: %v", err)
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
