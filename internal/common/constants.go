// Package common holds environment variable keys, defaults, and shared
// error strings used across the risk engine's configuration and
// component packages.
package common

// Environment variable keys.
const (
	EnvInitialBalance         = "INITIAL_BALANCE"
	EnvMaxRiskPerTrade        = "MAX_RISK_PER_TRADE"
	EnvMaxDailyLoss           = "MAX_DAILY_LOSS"
	EnvMaxPositionUSD         = "MAX_POSITION_USD"
	EnvKellySafetyFraction    = "KELLY_SAFETY_FRACTION"
	EnvKellyCap               = "KELLY_CAP"
	EnvRiskOfRuinThreshold    = "RISK_OF_RUIN_THRESHOLD"
	EnvMaxDailyTrades         = "MAX_DAILY_TRADES"
	EnvMaxTotalExposurePct    = "MAX_TOTAL_EXPOSURE_PCT"
	EnvATRMultiplierSL        = "ATR_MULTIPLIER_SL"
	EnvATRMultiplierTP        = "ATR_MULTIPLIER_TP"
	EnvTrailingActivationPct  = "TRAILING_ACTIVATION_PCT"
	EnvTrailingStepPct        = "TRAILING_STEP_PCT"
	EnvBreakevenActivationPct = "BREAKEVEN_ACTIVATION_PCT"
	EnvPairCooldownSeconds    = "PAIR_COOLDOWN_SECONDS"
	EnvMaxConcurrentPositions = "MAX_CONCURRENT_POSITIONS"
	EnvPostLossCooldownSecs   = "POST_LOSS_COOLDOWN_SECONDS"
	EnvMinRiskRewardRatio     = "MIN_RISK_REWARD_RATIO"
	EnvStrategyCooldowns      = "STRATEGY_COOLDOWNS"
	EnvCorrelationGroups      = "CORRELATION_GROUPS"
	EnvGroupMaxPositions      = "GROUP_MAX_POSITIONS"
	EnvMaxTradesPerHour       = "MAX_TRADES_PER_HOUR"
	EnvQuietHoursUTC          = "QUIET_HOURS_UTC"
	EnvAllowDuplicatePairs    = "ALLOW_DUPLICATE_PAIRS"
	EnvMetricsPort            = "METRICS_PORT"
	EnvControlPort            = "CONTROL_PORT"
	EnvDataPath               = "DATA_PATH"
	EnvTenant                 = "TENANT"
)

// Configuration defaults, mirroring spec.md §3.
const (
	DefaultMaxRiskPerTrade        = 0.02
	DefaultMaxDailyLoss           = 0.05
	DefaultMaxPositionUSD         = 500.0
	DefaultKellySafetyFraction    = 0.25
	DefaultKellyCap               = 0.10
	DefaultRiskOfRuinThreshold    = 0.01
	DefaultMaxDailyTrades         = 0 // unlimited
	DefaultMaxTotalExposurePct    = 0.50
	DefaultATRMultiplierSL        = 2.0
	DefaultATRMultiplierTP        = 3.0
	DefaultTrailingActivationPct  = 0.015
	DefaultTrailingStepPct        = 0.005
	DefaultBreakevenActivationPct = 0.01
	DefaultPairCooldownSeconds    = 300
	DefaultMaxConcurrentPositions = 5
	DefaultPostLossCooldownSecs   = 1800
	DefaultMinRiskRewardRatio     = 1.2
	DefaultMetricsPort            = 9090
	DefaultControlPort            = 8090

	MinTotalExposurePctClamp = 0.05
	MaxTotalExposurePctClamp = 1.0
	MinRiskRewardRatioClamp  = 0.1

	TradeHistoryCapacity = 5000
	RuinMinSampleSize     = 50
)

// Shared error/reason strings (kept stable so callers can match on them).
const (
	ErrMsgInitialBalanceRequired = "initialBalance must be positive"
	ErrMsgMaxRiskPerTradeRange   = "maxRiskPerTrade must be in (0, 1]"
	ErrMsgMaxDailyLossRange      = "maxDailyLoss must be in (0, 1]"

	ReasonGlobalCooldown      = "global cooldown active"
	ReasonDailyLossLimit      = "daily loss limit reached"
	ReasonPairCooldown        = "pair cooldown active"
	ReasonMaxConcurrent       = "max concurrent positions reached"
	ReasonDailyTradeCap       = "daily trade cap reached"
	ReasonRiskOfRuin          = "risk of ruin above threshold"
	ReasonCorrelationGroup    = "correlation group concurrency cap reached"
	ReasonTradeRateCap        = "trade rate cap reached"
	ReasonQuietHours          = "quiet hours"
	ReasonDuplicatePair       = "duplicate pair position open"
	ReasonStaleData           = "stale market data"
	ReasonInvalidPrice        = "invalid entry or stop price"
	ReasonBankrollExhausted   = "bankroll exhausted"
	ReasonStopDistanceInvalid = "stop distance out of range"
	ReasonRiskRewardTooLow    = "risk reward ratio below minimum"
	ReasonSizeBelowMinimum    = "size below minimum"
	ReasonTradingPaused       = "trading paused by operator"
)
