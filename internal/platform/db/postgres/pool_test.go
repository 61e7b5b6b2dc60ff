package postgres

import (
	"testing"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
)

func TestBuildPoolConfig(t *testing.T) {
	t.Parallel()

	dbCfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            15432,
		User:            "user",
		Password:        "pass",
		Name:            "db",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}

	poolCfg, err := BuildPoolConfig(dbCfg)
	if err != nil {
		t.Fatalf("BuildPoolConfig returned error: %v", err)
	}

	if poolCfg.MaxConns != 20 {
		t.Errorf("expected MaxConns 20, got %d", poolCfg.MaxConns)
	}

	if poolCfg.MinConns != 5 {
		t.Errorf("expected MinConns 5, got %d", poolCfg.MinConns)
	}

	if poolCfg.MaxConnLifetime != 30*time.Minute {
		t.Errorf("unexpected MaxConnLifetime: %v", poolCfg.MaxConnLifetime)
	}

	if poolCfg.MaxConnIdleTime != 10*time.Minute {
		t.Errorf("unexpected MaxConnIdleTime: %v", poolCfg.MaxConnIdleTime)
	}

	if poolCfg.ConnConfig.Database != "db" {
		t.Errorf("expected database db, got %s", poolCfg.ConnConfig.Database)
	}

	params := poolCfg.ConnConfig.RuntimeParams
	if params["application_name"] != "checkin-ledger" {
		t.Errorf("unexpected application_name: %q", params["application_name"])
	}
	for _, key := range []string{"default_transaction_isolation", "statement_timeout", "lock_timeout"} {
		if _, ok := params[key]; ok {
			t.Errorf("%s must follow the server default when unset", key)
		}
	}
}

func TestBuildPoolConfigSessionDefaults(t *testing.T) {
	t.Parallel()

	dbCfg := config.DatabaseConfig{
		Host:             "localhost",
		Port:             15432,
		User:             "user",
		Password:         "pass",
		Name:             "db",
		SSLMode:          "disable",
		ApplicationName:  "checkinctl",
		Isolation:        "serializable",
		StatementTimeout: 15 * time.Second,
		LockTimeout:      1500 * time.Millisecond,
	}

	poolCfg, err := BuildPoolConfig(dbCfg)
	if err != nil {
		t.Fatalf("BuildPoolConfig returned error: %v", err)
	}

	want := map[string]string{
		"application_name":              "checkinctl",
		"default_transaction_isolation": "serializable",
		"statement_timeout":             "15000",
		"lock_timeout":                  "1500",
	}
	for key, value := range want {
		if got := poolCfg.ConnConfig.RuntimeParams[key]; got != value {
			t.Errorf("%s: expected %q, got %q", key, value, got)
		}
	}
}
