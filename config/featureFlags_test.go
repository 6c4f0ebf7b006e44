package config

import (
	"testing"
	"time"
)

func TestPrivilegedRoles_DefaultAndOverride(t *testing.T) {
	t.Setenv("PRIVILEGED_ROLES", "")
	if !IsPrivilegedRole("Admin") || !IsPrivilegedRole("finance") {
		t.Fatalf("expected admin and finance to be privileged by default")
	}
	if IsPrivilegedRole("staff") {
		t.Fatalf("staff must not be privileged by default")
	}

	t.Setenv("PRIVILEGED_ROLES", " owner , GM ")
	if !IsPrivilegedRole("gm") || !IsPrivilegedRole("OWNER") {
		t.Fatalf("expected override roles to be privileged, got %v", PrivilegedRoles())
	}
	if IsPrivilegedRole("admin") {
		t.Fatalf("admin must not be privileged once overridden")
	}
	if IsPrivilegedRole("") {
		t.Fatalf("empty role must never be privileged")
	}
}

func TestLedgerLockTimeout(t *testing.T) {
	t.Setenv("LEDGER_LOCK_TIMEOUT_SECONDS", "")
	if got := LedgerLockTimeout(); got != 10*time.Second {
		t.Fatalf("default timeout: got %s", got)
	}
	t.Setenv("LEDGER_LOCK_TIMEOUT_SECONDS", "3")
	if got := LedgerLockTimeout(); got != 3*time.Second {
		t.Fatalf("override timeout: got %s", got)
	}
	t.Setenv("LEDGER_LOCK_TIMEOUT_SECONDS", "-1")
	if got := LedgerLockTimeout(); got != 10*time.Second {
		t.Fatalf("invalid timeout should fall back, got %s", got)
	}
}

func TestDatabaseDriver(t *testing.T) {
	cases := map[string]string{
		"":           DriverMySQL,
		"mysql":      DriverMySQL,
		"Postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		"memory":     DriverMemory,
	}
	for in, want := range cases {
		t.Setenv("DB_DRIVER", in)
		if got := DatabaseDriver(); got != want {
			t.Errorf("DB_DRIVER=%q: got %q want %q", in, got, want)
		}
	}
}
