package treasury

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/fiat"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// WalletSource derives both the address and the private key for a derivation
// index. *wallet.Deriver satisfies it.
type WalletSource interface {
	AddressSource
	KeySource
}

// Deps carries everything the treasury jobs share. Key material is parsed by
// the caller so the pipeline itself never sees raw config strings.
type Deps struct {
	Store      *ledger.Store
	Chain      ChainClient
	Wallets    WalletSource
	Fiat       fiat.Client
	Dispatcher notify.Dispatcher
	Sender     notify.Sender
	GasTankKey *ecdsa.PrivateKey
	PayoutKey  *ecdsa.PrivateKey
	Config     *config.Config
}

// Pipeline owns one instance of every treasury job, wired from shared
// dependencies. The scheduler and the cron endpoints both run jobs through
// it so a manual trigger and a scheduled run are the same code path.
type Pipeline struct {
	Monitor      *DepositMonitor
	Processor    *PaymentProcessor
	Batcher      *PayoutBatcher
	Executor     *PayoutExecutor
	PayoutRun    *PayoutRunJob
	SweepFund    *SweepFundJob
	SweepAdvance *SweepAdvanceJob
	SweepVerify  *SweepVerifyJob
	Gas          *GasMonitor
	Outbox       *OutboxJob
	Cleanup      *CleanupJob
	Provision    *ProvisionJob
}

func NewPipeline(deps Deps) *Pipeline {
	cfg := deps.Config
	treasuryCfg := cfg.Treasury

	processor := NewPaymentProcessor(deps.Store, deps.Dispatcher,
		treasuryCfg.DirectBonusRate, treasuryCfg.ResidualRate)

	monitor := NewDepositMonitor(deps.Store, deps.Chain, processor,
		PricingFromConfig(treasuryCfg),
		treasuryCfg.MonitorBatchSize, treasuryCfg.MonitorPoolSize,
		time.Duration(cfg.Jobs.IntentTTL)*time.Hour)

	batcher := NewPayoutBatcher(deps.Store, treasuryCfg.MinPayout,
		treasuryCfg.BatcherPageSize, treasuryCfg.GasPerPayoutWei)

	executor := NewPayoutExecutor(deps.Store, deps.Chain, deps.Fiat,
		deps.Dispatcher, deps.PayoutKey, cfg.Stripe.FeePercent)

	sweepGas := weiFromString(treasuryCfg.SweepGasWei)
	payoutAddress := ""
	if deps.PayoutKey != nil {
		payoutAddress = crypto.PubkeyToAddress(deps.PayoutKey.PublicKey).Hex()
	}
	gasTankAddress := ""
	if deps.GasTankKey != nil {
		gasTankAddress = crypto.PubkeyToAddress(deps.GasTankKey.PublicKey).Hex()
	}

	return &Pipeline{
		Monitor:   monitor,
		Processor: processor,
		Batcher:   batcher,
		Executor:  executor,
		PayoutRun: NewPayoutRunJob(executor, 0),
		SweepFund: NewSweepFundJob(deps.Store, deps.Chain, deps.GasTankKey,
			sweepGas, treasuryCfg.SweepBatchSize),
		SweepAdvance: NewSweepAdvanceJob(deps.Store, deps.Chain, deps.Wallets,
			cfg.Wallet.TreasuryAddress, treasuryCfg.SweepBatchSize),
		SweepVerify: NewSweepVerifyJob(deps.Store, deps.Chain,
			cfg.Wallet.TreasuryAddress, treasuryCfg.MaxVerifyAttempts,
			treasuryCfg.SweepBatchSize),
		Gas: NewGasMonitor(deps.Store, deps.Chain, deps.Dispatcher, GasMonitorConfig{
			GasTankAddress:    gasTankAddress,
			PayoutAddress:     payoutAddress,
			GasWarningWei:     weiFromString(treasuryCfg.GasWarningWei),
			GasCriticalWei:    weiFromString(treasuryCfg.GasCriticalWei),
			GasPerTxWei:       weiFromString(treasuryCfg.GasPerPayoutWei),
			PayoutWarningUsd:  decimal.NewFromFloat(treasuryCfg.PayoutWarningUsd),
			PayoutCriticalUsd: decimal.NewFromFloat(treasuryCfg.PayoutCriticalUsd),
		}),
		Outbox:    NewOutboxJob(deps.Store, deps.Sender, cfg.Notify.BatchSize, cfg.Notify.MaxAttempts),
		Cleanup:   NewCleanupJob(deps.Store),
		Provision: NewProvisionJob(deps.Store, deps.Wallets, 0),
	}
}

// Jobs returns every periodic job for scheduler registration.
func (p *Pipeline) Jobs() []Job {
	return []Job{
		p.Monitor,
		p.Batcher,
		p.PayoutRun,
		p.SweepFund,
		p.SweepAdvance,
		p.SweepVerify,
		p.Gas,
		p.Outbox,
		p.Cleanup,
		p.Provision,
	}
}

func weiFromString(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
