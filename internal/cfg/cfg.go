// Package cfg provides configuration management for the risk engine.
// It supports loading configuration from both YAML files and environment
// variables, with environment variables taking precedence over YAML
// settings.
//
// The package handles validation of all configuration parameters and
// provides sensible defaults for optional settings.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"riskengine/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings contains all configuration parameters for the risk engine.
type Settings struct {
	// Bankroll / loss limits
	InitialBalance  float64 // starting bankroll
	MaxRiskPerTrade float64 // fraction of bankroll risked per trade
	MaxDailyLoss    float64 // fraction of bankroll; daily loss cap
	MaxPositionUSD  float64 // hard per-position notional cap

	// Sizing pipeline
	KellySafetyFraction float64 // half-Kelly style safety multiplier
	KellyCap            float64 // hard ceiling on the Kelly fraction itself

	// Risk of ruin
	RiskOfRuinThreshold float64 // gate denies new trades above this

	// Entry gate
	MaxDailyTrades      int     // 0 means unlimited
	MaxTotalExposurePct float64 // fraction of bankroll, total open exposure cap
	MaxConcurrentPositions int
	PairCooldown        time.Duration
	PostLossCooldown    time.Duration
	MinRiskRewardRatio  float64
	StrategyCooldowns   map[string]time.Duration
	CorrelationGroups   map[string]string // pair -> group name
	GroupMaxPositions   map[string]int    // group name -> max concurrent
	MaxTradesPerHour    int               // 0 means unlimited
	QuietHoursUTC       []int             // hours [0,23] during which entries are denied
	AllowDuplicatePairs bool

	// Stop-loss / trailing
	ATRMultiplierSL        float64
	ATRMultiplierTP        float64
	TrailingActivationPct  float64
	TrailingStepPct        float64
	BreakevenActivationPct float64

	// System
	MetricsPort int
	ControlPort int
	DataPath    string
	Tenant      string
}

// ConfigFile is the YAML configuration file schema.
type ConfigFile struct {
	Bankroll struct {
		InitialBalance  float64 `yaml:"initialBalance"`
		MaxRiskPerTrade float64 `yaml:"maxRiskPerTrade"`
		MaxDailyLoss    float64 `yaml:"maxDailyLoss"`
		MaxPositionUSD  float64 `yaml:"maxPositionUSD"`
	} `yaml:"bankroll"`

	Sizing struct {
		KellySafetyFraction float64 `yaml:"kellySafetyFraction"`
		KellyCap            float64 `yaml:"kellyCap"`
	} `yaml:"sizing"`

	Ruin struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"ruin"`

	Gate struct {
		MaxDailyTrades         int            `yaml:"maxDailyTrades"`
		MaxTotalExposurePct    float64        `yaml:"maxTotalExposurePct"`
		MaxConcurrentPositions int            `yaml:"maxConcurrentPositions"`
		PairCooldownSeconds    int            `yaml:"pairCooldownSeconds"`
		PostLossCooldownSecs   int            `yaml:"postLossCooldownSeconds"`
		MinRiskRewardRatio     float64        `yaml:"minRiskRewardRatio"`
		StrategyCooldowns      map[string]int `yaml:"strategyCooldowns"` // seconds
		CorrelationGroups      map[string]string `yaml:"correlationGroups"`
		GroupMaxPositions      map[string]int    `yaml:"groupMaxPositions"`
		MaxTradesPerHour       int            `yaml:"maxTradesPerHour"`
		QuietHoursUTC          []int          `yaml:"quietHoursUTC"`
		AllowDuplicatePairs    bool           `yaml:"allowDuplicatePairs"`
	} `yaml:"gate"`

	StopLoss struct {
		ATRMultiplierSL        float64 `yaml:"atrMultiplierSL"`
		ATRMultiplierTP        float64 `yaml:"atrMultiplierTP"`
		TrailingActivationPct  float64 `yaml:"trailingActivationPct"`
		TrailingStepPct        float64 `yaml:"trailingStepPct"`
		BreakevenActivationPct float64 `yaml:"breakevenActivationPct"`
	} `yaml:"stopLoss"`

	System struct {
		MetricsPort int    `yaml:"metricsPort"`
		ControlPort int    `yaml:"controlPort"`
		DataPath    string `yaml:"dataPath"`
		Tenant      string `yaml:"tenant"`
	} `yaml:"system"`
}

// Load loads configuration from either a YAML file or environment
// variables. It first checks for a CONFIG_FILE environment variable to
// load from YAML, otherwise falls back to loading from environment
// variables. Returns a validated Settings struct or an error if
// configuration is invalid.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		InitialBalance:  getFloatFromEnvOrConfig(common.EnvInitialBalance, file.Bankroll.InitialBalance),
		MaxRiskPerTrade: getFloatFromEnvOrConfigWithDefault(common.EnvMaxRiskPerTrade, file.Bankroll.MaxRiskPerTrade, common.DefaultMaxRiskPerTrade),
		MaxDailyLoss:    getFloatFromEnvOrConfigWithDefault(common.EnvMaxDailyLoss, file.Bankroll.MaxDailyLoss, common.DefaultMaxDailyLoss),
		MaxPositionUSD:  getFloatFromEnvOrConfigWithDefault(common.EnvMaxPositionUSD, file.Bankroll.MaxPositionUSD, common.DefaultMaxPositionUSD),

		KellySafetyFraction: getFloatFromEnvOrConfigWithDefault(common.EnvKellySafetyFraction, file.Sizing.KellySafetyFraction, common.DefaultKellySafetyFraction),
		KellyCap:            getFloatFromEnvOrConfigWithDefault(common.EnvKellyCap, file.Sizing.KellyCap, common.DefaultKellyCap),

		RiskOfRuinThreshold: getFloatFromEnvOrConfigWithDefault(common.EnvRiskOfRuinThreshold, file.Ruin.Threshold, common.DefaultRiskOfRuinThreshold),

		MaxDailyTrades:         getIntFromEnvOrConfig(common.EnvMaxDailyTrades, file.Gate.MaxDailyTrades),
		MaxTotalExposurePct:    clampExposurePct(getFloatFromEnvOrConfigWithDefault(common.EnvMaxTotalExposurePct, file.Gate.MaxTotalExposurePct, common.DefaultMaxTotalExposurePct)),
		MaxConcurrentPositions: getIntFromEnvOrConfigWithDefault(common.EnvMaxConcurrentPositions, file.Gate.MaxConcurrentPositions, common.DefaultMaxConcurrentPositions),
		PairCooldown:           secondsFromEnvOrConfigWithDefault(common.EnvPairCooldownSeconds, file.Gate.PairCooldownSeconds, common.DefaultPairCooldownSeconds),
		PostLossCooldown:       secondsFromEnvOrConfigWithDefault(common.EnvPostLossCooldownSecs, file.Gate.PostLossCooldownSecs, common.DefaultPostLossCooldownSecs),
		MinRiskRewardRatio:     clampMinRR(getFloatFromEnvOrConfigWithDefault(common.EnvMinRiskRewardRatio, file.Gate.MinRiskRewardRatio, common.DefaultMinRiskRewardRatio)),
		StrategyCooldowns:      strategyCooldownsFromEnvOrConfig(file.Gate.StrategyCooldowns),
		CorrelationGroups:      correlationGroupsFromEnvOrConfig(file.Gate.CorrelationGroups),
		GroupMaxPositions:      groupMaxPositionsFromEnvOrConfig(file.Gate.GroupMaxPositions),
		MaxTradesPerHour:       getIntFromEnvOrConfig(common.EnvMaxTradesPerHour, file.Gate.MaxTradesPerHour),
		QuietHoursUTC:          quietHoursFromEnvOrConfig(file.Gate.QuietHoursUTC),
		AllowDuplicatePairs:    getBoolFromEnvOrConfig(common.EnvAllowDuplicatePairs, file.Gate.AllowDuplicatePairs),

		ATRMultiplierSL:        getFloatFromEnvOrConfigWithDefault(common.EnvATRMultiplierSL, file.StopLoss.ATRMultiplierSL, common.DefaultATRMultiplierSL),
		ATRMultiplierTP:        getFloatFromEnvOrConfigWithDefault(common.EnvATRMultiplierTP, file.StopLoss.ATRMultiplierTP, common.DefaultATRMultiplierTP),
		TrailingActivationPct:  getFloatFromEnvOrConfigWithDefault(common.EnvTrailingActivationPct, file.StopLoss.TrailingActivationPct, common.DefaultTrailingActivationPct),
		TrailingStepPct:        getFloatFromEnvOrConfigWithDefault(common.EnvTrailingStepPct, file.StopLoss.TrailingStepPct, common.DefaultTrailingStepPct),
		BreakevenActivationPct: getFloatFromEnvOrConfigWithDefault(common.EnvBreakevenActivationPct, file.StopLoss.BreakevenActivationPct, common.DefaultBreakevenActivationPct),

		MetricsPort: getIntFromEnvOrConfigWithDefault(common.EnvMetricsPort, file.System.MetricsPort, common.DefaultMetricsPort),
		ControlPort: getIntFromEnvOrConfigWithDefault(common.EnvControlPort, file.System.ControlPort, common.DefaultControlPort),
		DataPath:    getEnvOrDefault(common.EnvDataPath, file.System.DataPath),
		Tenant:      getEnvOrDefault(common.EnvTenant, file.System.Tenant),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	initialBalance, err := getFloatRequired(common.EnvInitialBalance)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		InitialBalance:  initialBalance,
		MaxRiskPerTrade: getFloatOrDefault(common.EnvMaxRiskPerTrade, common.DefaultMaxRiskPerTrade),
		MaxDailyLoss:    getFloatOrDefault(common.EnvMaxDailyLoss, common.DefaultMaxDailyLoss),
		MaxPositionUSD:  getFloatOrDefault(common.EnvMaxPositionUSD, common.DefaultMaxPositionUSD),

		KellySafetyFraction: getFloatOrDefault(common.EnvKellySafetyFraction, common.DefaultKellySafetyFraction),
		KellyCap:            getFloatOrDefault(common.EnvKellyCap, common.DefaultKellyCap),

		RiskOfRuinThreshold: getFloatOrDefault(common.EnvRiskOfRuinThreshold, common.DefaultRiskOfRuinThreshold),

		MaxDailyTrades:         getIntOrDefault(common.EnvMaxDailyTrades, common.DefaultMaxDailyTrades),
		MaxTotalExposurePct:    clampExposurePct(getFloatOrDefault(common.EnvMaxTotalExposurePct, common.DefaultMaxTotalExposurePct)),
		MaxConcurrentPositions: getIntOrDefault(common.EnvMaxConcurrentPositions, common.DefaultMaxConcurrentPositions),
		PairCooldown:           getSecondsDurationOrDefault(common.EnvPairCooldownSeconds, common.DefaultPairCooldownSeconds),
		PostLossCooldown:       getSecondsDurationOrDefault(common.EnvPostLossCooldownSecs, common.DefaultPostLossCooldownSecs),
		MinRiskRewardRatio:     clampMinRR(getFloatOrDefault(common.EnvMinRiskRewardRatio, common.DefaultMinRiskRewardRatio)),
		StrategyCooldowns:      strategyCooldownsFromEnvOrConfig(nil),
		CorrelationGroups:      correlationGroupsFromEnvOrConfig(nil),
		GroupMaxPositions:      groupMaxPositionsFromEnvOrConfig(nil),
		MaxTradesPerHour:       getIntOrDefault(common.EnvMaxTradesPerHour, 0),
		QuietHoursUTC:          quietHoursFromEnvOrConfig(nil),
		AllowDuplicatePairs:    getBoolOrDefault(common.EnvAllowDuplicatePairs, false),

		ATRMultiplierSL:        getFloatOrDefault(common.EnvATRMultiplierSL, common.DefaultATRMultiplierSL),
		ATRMultiplierTP:        getFloatOrDefault(common.EnvATRMultiplierTP, common.DefaultATRMultiplierTP),
		TrailingActivationPct:  getFloatOrDefault(common.EnvTrailingActivationPct, common.DefaultTrailingActivationPct),
		TrailingStepPct:        getFloatOrDefault(common.EnvTrailingStepPct, common.DefaultTrailingStepPct),
		BreakevenActivationPct: getFloatOrDefault(common.EnvBreakevenActivationPct, common.DefaultBreakevenActivationPct),

		MetricsPort: getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		ControlPort: getIntOrDefault(common.EnvControlPort, common.DefaultControlPort),
		DataPath:    os.Getenv(common.EnvDataPath),
		Tenant:      getEnvOrDefault(common.EnvTenant, "default"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// GroupFor returns the correlation group a pair belongs to, or "" if
// it isn't assigned to one.
func (s *Settings) GroupFor(pair string) string {
	return s.CorrelationGroups[pair]
}

// CooldownFor returns the configured cooldown for a strategy, falling
// back to PairCooldown when the strategy has no override.
func (s *Settings) CooldownFor(strategy string) time.Duration {
	if d, ok := s.StrategyCooldowns[strategy]; ok {
		return d
	}
	return s.PairCooldown
}

func validateSettings(s *Settings) error {
	if err := validateBankroll(s); err != nil {
		return err
	}
	if err := validateSizing(s); err != nil {
		return err
	}
	if err := validateGate(s); err != nil {
		return err
	}
	if err := validateStopLoss(s); err != nil {
		return err
	}
	return nil
}

func validateBankroll(s *Settings) error {
	if s.InitialBalance <= 0 {
		return fmt.Errorf(common.ErrMsgInitialBalanceRequired)
	}
	if s.MaxRiskPerTrade <= 0 || s.MaxRiskPerTrade > 1 {
		return fmt.Errorf(common.ErrMsgMaxRiskPerTradeRange)
	}
	if s.MaxDailyLoss <= 0 || s.MaxDailyLoss > 1 {
		return fmt.Errorf(common.ErrMsgMaxDailyLossRange)
	}
	if s.MaxPositionUSD <= 0 {
		return fmt.Errorf("maxPositionUSD must be positive")
	}
	return nil
}

func validateSizing(s *Settings) error {
	if s.KellySafetyFraction <= 0 || s.KellySafetyFraction > 1 {
		return fmt.Errorf("kellySafetyFraction must be in (0, 1]")
	}
	if s.KellyCap <= 0 || s.KellyCap > 1 {
		return fmt.Errorf("kellyCap must be in (0, 1]")
	}
	return nil
}

func validateGate(s *Settings) error {
	if s.MaxDailyTrades < 0 {
		return fmt.Errorf("maxDailyTrades must not be negative")
	}
	if s.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("maxConcurrentPositions must be positive")
	}
	if s.MinRiskRewardRatio <= 0 {
		return fmt.Errorf("minRiskRewardRatio must be positive")
	}
	for _, h := range s.QuietHoursUTC {
		if h < 0 || h > 23 {
			return fmt.Errorf("quietHoursUTC entries must be in [0, 23]")
		}
	}
	return nil
}

func validateStopLoss(s *Settings) error {
	if s.ATRMultiplierSL <= 0 {
		return fmt.Errorf("atrMultiplierSL must be positive")
	}
	if s.TrailingStepPct <= 0 {
		return fmt.Errorf("trailingStepPct must be positive")
	}
	return nil
}

func clampExposurePct(v float64) float64 {
	if v < common.MinTotalExposurePctClamp {
		return common.MinTotalExposurePctClamp
	}
	if v > common.MaxTotalExposurePctClamp {
		return common.MaxTotalExposurePctClamp
	}
	return v
}

func clampMinRR(v float64) float64 {
	if v < common.MinRiskRewardRatioClamp {
		return common.MinRiskRewardRatioClamp
	}
	return v
}

func strategyCooldownsFromEnvOrConfig(fromConfig map[string]int) map[string]time.Duration {
	out := make(map[string]time.Duration, len(fromConfig))
	for k, v := range fromConfig {
		out[k] = time.Duration(v) * time.Second
	}
	if env := os.Getenv(common.EnvStrategyCooldowns); env != "" {
		for _, pair := range strings.Split(env, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			secs, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				continue
			}
			out[strings.TrimSpace(kv[0])] = time.Duration(secs) * time.Second
		}
	}
	return out
}

func correlationGroupsFromEnvOrConfig(fromConfig map[string]string) map[string]string {
	out := make(map[string]string, len(fromConfig))
	for k, v := range fromConfig {
		out[k] = v
	}
	if env := os.Getenv(common.EnvCorrelationGroups); env != "" {
		for _, pair := range strings.Split(env, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 {
				out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		}
	}
	return out
}

func groupMaxPositionsFromEnvOrConfig(fromConfig map[string]int) map[string]int {
	out := make(map[string]int, len(fromConfig))
	for k, v := range fromConfig {
		out[k] = v
	}
	if env := os.Getenv(common.EnvGroupMaxPositions); env != "" {
		for _, pair := range strings.Split(env, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				continue
			}
			out[strings.TrimSpace(kv[0])] = n
		}
	}
	return out
}

func quietHoursFromEnvOrConfig(fromConfig []int) []int {
	if env := os.Getenv(common.EnvQuietHoursUTC); env != "" {
		var out []int
		for _, part := range strings.Split(env, ",") {
			h, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil {
				out = append(out, h)
			}
		}
		return out
	}
	return fromConfig
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getFloatRequired(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("required environment variable %s is missing", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s is not a number: %w", key, err)
	}
	return f, nil
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getSecondsDurationOrDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(getIntOrDefault(key, defaultSeconds)) * time.Second
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return configValue
}

func getIntFromEnvOrConfigWithDefault(key string, configValue, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return configValue
}

func getFloatFromEnvOrConfigWithDefault(key string, configValue, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return configValue
}

func secondsFromEnvOrConfig(key string, configSeconds int) time.Duration {
	return time.Duration(getIntFromEnvOrConfig(key, configSeconds)) * time.Second
}

func secondsFromEnvOrConfigWithDefault(key string, configSeconds, defaultSeconds int) time.Duration {
	return time.Duration(getIntFromEnvOrConfigWithDefault(key, configSeconds, defaultSeconds)) * time.Second
}
