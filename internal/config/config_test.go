package config

import (
	"testing"
	"time"

	"github.com/me/pmcore/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Policy != model.PolicyAging {
		t.Errorf("Policy = %q, want aging", cfg.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v for defaults", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"table size", func(c *Config) { c.TableSize = 1 }},
		{"frames", func(c *Config) { c.Frames = 0 }},
		{"tick interval", func(c *Config) { c.TickInterval = -time.Second }},
		{"flush every", func(c *Config) { c.FlushEvery = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if want := ".pmcore/pmcore.db"; len(path) < len(want) || path[len(path)-len(want):] != want {
		t.Errorf("DefaultDBPath() = %q, want suffix %q", path, want)
	}
}
