package main

import (
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/chain"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/database"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/fiat"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/router"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/task"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/treasury"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Environment first so config env overrides see .env values.
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded: %v", err)
	}

	cfg := config.Load()

	level := logger.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.Output == "file" {
		fileLogger, err := logger.NewWithFileRotation(level, cfg.Log.File)
		if err != nil {
			logger.Fatal("Failed to initialize file logger: %v", err)
		}
		logger.SetDefaultLogger(fileLogger)
	} else if l, err := logger.New(level); err == nil {
		logger.SetDefaultLogger(l)
	}
	defer logger.Sync()

	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	store := ledger.NewStore(db)

	chainClient, err := chain.Init(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain client: %v", err)
	}

	deriver, err := wallet.NewDeriver(cfg.Wallet.MasterMnemonic)
	if err != nil {
		logger.Fatal("Failed to initialize wallet deriver: %v", err)
	}

	gasTankKey, err := crypto.HexToECDSA(cfg.Wallet.GasTankKey)
	if err != nil {
		logger.Fatal("Invalid gas tank key: %v", err)
	}
	payoutKey, err := crypto.HexToECDSA(cfg.Wallet.PayoutWalletKey)
	if err != nil {
		logger.Fatal("Invalid payout wallet key: %v", err)
	}

	sender := notify.NewHTTPSender(cfg.Notify.WebhookUrl, cfg.Notify.Token)
	var dispatcher notify.Dispatcher
	if cfg.Notify.Mode == "direct" {
		dispatcher = notify.NewDirectDispatcher(sender)
	} else {
		dispatcher = notify.NewQueuedDispatcher(store)
	}

	pipeline := treasury.NewPipeline(treasury.Deps{
		Store:      store,
		Chain:      chainClient,
		Wallets:    deriver,
		Fiat:       fiat.NewStripeClient(cfg.Stripe.ApiKey),
		Dispatcher: dispatcher,
		Sender:     sender,
		GasTankKey: gasTankKey,
		PayoutKey:  payoutKey,
		Config:     cfg,
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	gasTankAddress := crypto.PubkeyToAddress(gasTankKey.PublicKey).Hex()
	payoutAddress := crypto.PubkeyToAddress(payoutKey.PublicKey).Hex()
	r := router.Setup(store, pipeline, chainClient, cfg, gasTankAddress, payoutAddress)

	if cfg.Jobs.SchedulerEnabled {
		manager, err := task.Start(pipeline, cfg)
		if err != nil {
			logger.Fatal("Failed to start task manager: %v", err)
		}
		defer manager.Stop()
	}

	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
