package config

import (
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Treasury TreasuryConfig `mapstructure:"treasury"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig holds the Polygon RPC endpoint and USDC token parameters.
type ChainConfig struct {
	RpcUrl        string `mapstructure:"rpc_url"`       // RPC node URL
	ChainId       int64  `mapstructure:"chain_id"`      // 137 for Polygon mainnet
	UsdcContract  string `mapstructure:"usdc_contract"` // USDC token contract address
	UsdcDecimals  int32  `mapstructure:"usdc_decimals"` // 6 on Polygon
	Confirmations int    `mapstructure:"confirmations"` // blocks before a tx counts as final
	CallTimeout   int    `mapstructure:"call_timeout"`  // seconds, per RPC call
}

// WalletConfig holds key material for the operational wallets. The master
// mnemonic derives per-user deposit addresses; the gas tank funds sweeps and
// the payout wallet sends commission payouts.
type WalletConfig struct {
	MasterMnemonic  string `mapstructure:"master_mnemonic"`
	TreasuryAddress string `mapstructure:"treasury_address"`
	GasTankKey      string `mapstructure:"gas_tank_key"`
	PayoutWalletKey string `mapstructure:"payout_wallet_key"`
}

type TreasuryConfig struct {
	InitialPrice      float64 `mapstructure:"initial_price"`      // USD, one-time unlock
	MonthlyPrice      float64 `mapstructure:"monthly_price"`      // USD
	WeeklyPrice       float64 `mapstructure:"weekly_price"`       // USD
	DirectBonusRate   float64 `mapstructure:"direct_bonus_rate"`  // share of initial price
	ResidualRate      float64 `mapstructure:"residual_rate"`      // share of subscription payment
	MinPayout         float64 `mapstructure:"min_payout"`         // USD, per commission and per referrer
	MonitorBatchSize  int     `mapstructure:"monitor_batch_size"` // users per deposit-monitor run
	MonitorPoolSize   int     `mapstructure:"monitor_pool_size"`  // concurrent balance reads
	BatcherPageSize   int     `mapstructure:"batcher_page_size"`  // commissions per batcher run
	SweepBatchSize    int     `mapstructure:"sweep_batch_size"`   // users per sweep stage run
	SweepGasWei       string  `mapstructure:"sweep_gas_wei"`      // native amount sent per funding
	MaxVerifyAttempts int     `mapstructure:"max_verify_attempts"`
	GasPerPayoutWei   string  `mapstructure:"gas_per_payout_wei"` // estimate used by the batcher
	GasWarningWei     string  `mapstructure:"gas_warning_wei"`
	GasCriticalWei    string  `mapstructure:"gas_critical_wei"`
	PayoutWarningUsd  float64 `mapstructure:"payout_warning_usd"`
	PayoutCriticalUsd float64 `mapstructure:"payout_critical_usd"`
}

type StripeConfig struct {
	ApiKey     string  `mapstructure:"api_key"`
	FeePercent float64 `mapstructure:"fee_percent"` // deducted from fiat payouts
}

type NotifyConfig struct {
	WebhookUrl  string `mapstructure:"webhook_url"`
	Token       string `mapstructure:"token"`
	Mode        string `mapstructure:"mode"` // direct or queued
	MaxAttempts int    `mapstructure:"max_attempts"`
	BatchSize   int    `mapstructure:"batch_size"`
}

type JobsConfig struct {
	CronSecret       string `mapstructure:"cron_secret"`
	SchedulerEnabled bool   `mapstructure:"scheduler_enabled"`
	MonitorInterval  int    `mapstructure:"monitor_interval"`   // seconds
	SweepInterval    int    `mapstructure:"sweep_interval"`     // seconds
	GasCheckInterval int    `mapstructure:"gas_check_interval"` // seconds
	BatchInterval    int    `mapstructure:"batch_interval"`     // seconds
	OutboxInterval   int    `mapstructure:"outbox_interval"`    // seconds
	CleanupInterval  int    `mapstructure:"cleanup_interval"`   // seconds
	IntentTTL        int    `mapstructure:"intent_ttl"`         // hours an intent stays valid
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`   // log file path when output=file
}

// GetLevel implements the logger.LogConfig interface
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput implements the logger.LogConfig interface
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile implements the logger.LogConfig interface
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/treasury")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "treasury")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	viper.SetDefault("chain.chain_id", 137)
	viper.SetDefault("chain.usdc_contract", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	viper.SetDefault("chain.usdc_decimals", 6)
	viper.SetDefault("chain.confirmations", 30)
	viper.SetDefault("chain.call_timeout", 15)
	viper.SetDefault("treasury.initial_price", 500.0)
	viper.SetDefault("treasury.monthly_price", 200.0)
	viper.SetDefault("treasury.weekly_price", 50.0)
	viper.SetDefault("treasury.direct_bonus_rate", 0.499)
	viper.SetDefault("treasury.residual_rate", 0.10)
	viper.SetDefault("treasury.min_payout", 10.0)
	viper.SetDefault("treasury.monitor_batch_size", 25)
	viper.SetDefault("treasury.monitor_pool_size", 8)
	viper.SetDefault("treasury.batcher_page_size", 500)
	viper.SetDefault("treasury.sweep_batch_size", 10)
	viper.SetDefault("treasury.sweep_gas_wei", "30000000000000000") // 0.03 POL
	viper.SetDefault("treasury.max_verify_attempts", 120)
	viper.SetDefault("treasury.gas_per_payout_wei", "6000000000000000") // ~65k gas at 90 gwei
	viper.SetDefault("treasury.gas_warning_wei", "500000000000000000")  // 0.5 POL
	viper.SetDefault("treasury.gas_critical_wei", "100000000000000000") // 0.1 POL
	viper.SetDefault("treasury.payout_warning_usd", 1000.0)
	viper.SetDefault("treasury.payout_critical_usd", 200.0)
	viper.SetDefault("stripe.fee_percent", 3.5)
	viper.SetDefault("notify.mode", "queued")
	viper.SetDefault("notify.max_attempts", 5)
	viper.SetDefault("notify.batch_size", 50)
	viper.SetDefault("jobs.scheduler_enabled", false)
	viper.SetDefault("jobs.monitor_interval", 120)
	viper.SetDefault("jobs.sweep_interval", 300)
	viper.SetDefault("jobs.gas_check_interval", 3600)
	viper.SetDefault("jobs.batch_interval", 86400)
	viper.SetDefault("jobs.outbox_interval", 60)
	viper.SetDefault("jobs.cleanup_interval", 604800)
	viper.SetDefault("jobs.intent_ttl", 72)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
