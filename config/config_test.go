package config

import (
	"testing"

	"github.com/emberchain/emberd/core"
	"github.com/emberchain/emberd/mining"
)

const testCoinbase = "0102030405060708090a0b0c0d0e0f1011121314"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{"--coinbaseaddr", testCoinbase, "--nofilelogging"})
	if err != nil {
		t.Fatalf("LoadConfig: %s", err)
	}

	wantAddr, err := core.ParseAddress(testCoinbase)
	if err != nil {
		t.Fatalf("ParseAddress: %s", err)
	}
	if cfg.Mining.CoinbaseAddress != wantAddr {
		t.Errorf("CoinbaseAddress: got %s, want %s", cfg.Mining.CoinbaseAddress, wantAddr)
	}
	if cfg.Mining.UncleListLimit != mining.DefaultUncleListLimit {
		t.Errorf("UncleListLimit: got %d, want %d", cfg.Mining.UncleListLimit, mining.DefaultUncleListLimit)
	}
	if cfg.Mining.SecondsBetweenFallbackBlocks != mining.DefaultSecondsBetweenFallbackBlocks {
		t.Errorf("SecondsBetweenFallbackBlocks: got %d, want %d",
			cfg.Mining.SecondsBetweenFallbackBlocks, mining.DefaultSecondsBetweenFallbackBlocks)
	}
	if cfg.Mining.GasLimitTarget != defaultGasLimitTarget {
		t.Errorf("GasLimitTarget: got %d, want %d", cfg.Mining.GasLimitTarget, defaultGasLimitTarget)
	}
	if cfg.Mining.GasUnitInFiat.String() != "1" {
		t.Errorf("GasUnitInFiat default: got %s, want 1", cfg.Mining.GasUnitInFiat)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"--coinbaseaddr", testCoinbase,
		"--nofilelogging",
		"--unclelistlimit", "3",
		"--mingaspricetarget", "25",
		"--fallbackinterval", "60",
		"--autoswitchfallback",
		"--extradata", "pool-7",
		"--debuglevel", "debug",
	})
	if err != nil {
		t.Fatalf("LoadConfig: %s", err)
	}
	if cfg.Mining.UncleListLimit != 3 {
		t.Errorf("UncleListLimit: got %d, want 3", cfg.Mining.UncleListLimit)
	}
	if cfg.Mining.MinGasPriceTarget.Int64() != 25 {
		t.Errorf("MinGasPriceTarget: got %s, want 25", cfg.Mining.MinGasPriceTarget)
	}
	if cfg.Mining.SecondsBetweenFallbackBlocks != 60 {
		t.Errorf("SecondsBetweenFallbackBlocks: got %d, want 60", cfg.Mining.SecondsBetweenFallbackBlocks)
	}
	if !cfg.Mining.AutoSwitchFallbackMining {
		t.Errorf("AutoSwitchFallbackMining: got false, want true")
	}
	if string(cfg.Mining.ExtraData) != "pool-7" {
		t.Errorf("ExtraData: got %q, want %q", cfg.Mining.ExtraData, "pool-7")
	}
	if cfg.DebugLevel != "debug" {
		t.Errorf("DebugLevel: got %s, want debug", cfg.DebugLevel)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	if _, err := LoadConfig([]string{"--nofilelogging"}); err == nil {
		t.Fatalf("LoadConfig accepted a missing coinbase address")
	}
	if _, err := LoadConfig([]string{"--coinbaseaddr", "nothex", "--nofilelogging"}); err == nil {
		t.Fatalf("LoadConfig accepted a malformed coinbase address")
	}
	if _, err := LoadConfig([]string{"--coinbaseaddr", testCoinbase, "--nofilelogging",
		"--debuglevel", "chatty"}); err == nil {
		t.Fatalf("LoadConfig accepted an unknown debug level")
	}
}
