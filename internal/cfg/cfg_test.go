package cfg

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unsetenv %s: %v", k, err)
		}
	}
}

func TestLoadFromEnvRequiresInitialBalance(t *testing.T) {
	clearEnv(t, "INITIAL_BALANCE", "CONFIG_FILE")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when INITIAL_BALANCE is missing")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	os.Setenv("INITIAL_BALANCE", "10000")
	defer os.Unsetenv("INITIAL_BALANCE")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.MaxRiskPerTrade != 0.02 {
		t.Errorf("expected default MaxRiskPerTrade 0.02, got %f", settings.MaxRiskPerTrade)
	}
	if settings.KellySafetyFraction != 0.25 {
		t.Errorf("expected default KellySafetyFraction 0.25, got %f", settings.KellySafetyFraction)
	}
	if settings.MaxConcurrentPositions != 5 {
		t.Errorf("expected default MaxConcurrentPositions 5, got %d", settings.MaxConcurrentPositions)
	}
	if settings.PairCooldown != 300*time.Second {
		t.Errorf("expected default PairCooldown 300s, got %v", settings.PairCooldown)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	os.Setenv("INITIAL_BALANCE", "5000")
	os.Setenv("MAX_RISK_PER_TRADE", "0.05")
	os.Setenv("MAX_CONCURRENT_POSITIONS", "3")
	os.Setenv("STRATEGY_COOLDOWNS", "momentum=60,meanrev=120")
	defer clearEnv(t, "INITIAL_BALANCE", "MAX_RISK_PER_TRADE", "MAX_CONCURRENT_POSITIONS", "STRATEGY_COOLDOWNS")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.MaxRiskPerTrade != 0.05 {
		t.Errorf("expected MaxRiskPerTrade 0.05, got %f", settings.MaxRiskPerTrade)
	}
	if settings.MaxConcurrentPositions != 3 {
		t.Errorf("expected MaxConcurrentPositions 3, got %d", settings.MaxConcurrentPositions)
	}
	if settings.CooldownFor("momentum") != 60*time.Second {
		t.Errorf("expected momentum cooldown 60s, got %v", settings.CooldownFor("momentum"))
	}
	if settings.CooldownFor("unknown") != settings.PairCooldown {
		t.Errorf("expected unknown strategy to fall back to PairCooldown")
	}
}

func TestValidateRejectsOutOfRangeRisk(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	os.Setenv("INITIAL_BALANCE", "1000")
	os.Setenv("MAX_RISK_PER_TRADE", "1.5")
	defer clearEnv(t, "INITIAL_BALANCE", "MAX_RISK_PER_TRADE")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for MaxRiskPerTrade > 1")
	}
}
