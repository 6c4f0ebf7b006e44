package config

import (
	"os"
	"strings"
	"time"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

// LedgerLockTimeout bounds how long a writer waits for the ledger lock before
// the operation fails with a concurrency conflict.
//
// Set via env:
// - LEDGER_LOCK_TIMEOUT_SECONDS=10
func LedgerLockTimeout() time.Duration {
	n := intFromEnv("LEDGER_LOCK_TIMEOUT_SECONDS", 10)
	if n <= 0 {
		n = 10
	}
	return time.Duration(n) * time.Second
}

// PrivilegedRoles lists the roles whose payment requests skip approval and
// start at Transfer Completed.
//
// Set via env:
// - PRIVILEGED_ROLES="admin,finance"
//
// Role names are case-insensitive.
func PrivilegedRoles() []string {
	raw := os.Getenv("PRIVILEGED_ROLES")
	if strings.TrimSpace(raw) == "" {
		return []string{"admin", "finance"}
	}
	var roles []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

func IsPrivilegedRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range PrivilegedRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// OutboxDispatchEnabled toggles the in-process outbox dispatcher (OUTBOX_DISPATCH_ENABLED, default true).
func OutboxDispatchEnabled() bool {
	return boolFromEnv("OUTBOX_DISPATCH_ENABLED", true)
}

// CommandPullEnabled toggles the pull subscriber for command messages (COMMAND_PULL_ENABLED, default false).
func CommandPullEnabled() bool {
	return boolFromEnv("COMMAND_PULL_ENABLED", false)
}
