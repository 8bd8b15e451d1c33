package config

import (
	"strings"
	"testing"
	"time"
)

type sample struct {
	Port    string        `env:"PORT" envDefault:"8080"`
	Days    int           `env:"DAYS" envDefault:"14"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"3s"`
	Secret  string        `env:"SECRET,required"`
}

func TestLoadFromDefaults(t *testing.T) {
	var cfg sample
	if err := LoadFrom(&cfg, map[string]string{"SECRET": "s"}); err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.Days != 14 || cfg.Timeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromRequired(t *testing.T) {
	var cfg sample
	if err := LoadFrom(&cfg, map[string]string{}); err == nil {
		t.Fatal("expected error for missing SECRET")
	}
}

func TestValidPort(t *testing.T) {
	for _, bad := range []string{"70000", "0", "http"} {
		if err := ValidPort(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if err := ValidPort("9090"); err != nil {
		t.Fatalf("9090: %v", err)
	}
}

func TestLoadFromReportsEveryField(t *testing.T) {
	var cfg sample
	err := LoadFrom(&cfg, map[string]string{"DAYS": "many"})
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "SECRET") || !strings.Contains(msg, "Days") {
		t.Fatalf("expected both field errors, got %q", msg)
	}
}
