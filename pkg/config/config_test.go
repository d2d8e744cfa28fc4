package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Errorf("store driver = %q, want memory", cfg.StoreDriver)
	}
	if cfg.BusNamespace != "voicewire" {
		t.Errorf("bus namespace = %q", cfg.BusNamespace)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("settle delay = %s", cfg.SettleDelay)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Errorf("shutdown grace = %s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VOICEWIRE_ADDR", ":9090")
	t.Setenv("VOICEWIRE_STORE_DRIVER", "postgres")
	t.Setenv("VOICEWIRE_POSTGRES_DSN", "postgres://localhost/voicewire")
	t.Setenv("VOICEWIRE_SETTLE_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("store driver = %q", cfg.StoreDriver)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Errorf("settle delay = %s", cfg.SettleDelay)
	}
}

func TestLoadRejectsBadDriver(t *testing.T) {
	t.Setenv("VOICEWIRE_STORE_DRIVER", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("unknown store driver should fail")
	}
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("VOICEWIRE_STORE_DRIVER", "postgres")
	t.Setenv("VOICEWIRE_POSTGRES_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("postgres driver without a DSN should fail")
	}
}
