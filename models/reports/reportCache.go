package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/sirupsen/logrus"
)

// ledgerVersionKey is bumped after every committed ledger write; cached reports are keyed by it,
// so a bump invalidates all of them at once.
const ledgerVersionKey = "cashflow:ledger-version"

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	logger := config.GetLogger()
	if logger == nil {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

// BumpLedgerVersion invalidates every cached report. It is a no-op without Redis.
func BumpLedgerVersion(ctx context.Context) error {
	_, err := config.GetRedisCounter(ctx, ledgerVersionKey)
	return err
}

func cacheGet[T any](key string, dest *T) (bool, error) {
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(key, obj, ttl)
}

// cachedReport serves build from Redis when ENABLE_REPORT_CACHE is on. Cache failures only log;
// the report is then built from the store.
func cachedReport[T any](ctx context.Context, name string, params string, build func() (*T, error)) (*T, error) {
	if !reportCacheEnabled() {
		return build()
	}
	logger := config.GetLogger()
	version, err := config.PeekRedisCounter(ctx, ledgerVersionKey)
	if err != nil {
		config.LogError(logger, "reports", "cachedReport", "peek ledger version", name, err)
		return build()
	}
	key := fmt.Sprintf("report:%s:v%d:%s", name, version, params)

	var cached T
	hit, err := cacheGet(key, &cached)
	if err != nil {
		config.LogError(logger, "reports", "cachedReport", "read cache", key, err)
	}
	if hit {
		return &cached, nil
	}
	out, err := build()
	if err != nil {
		return nil, err
	}
	if err := cacheSet(key, out, reportCacheTTL()); err != nil {
		config.LogError(logger, "reports", "cachedReport", "write cache", key, err)
	}
	return out, nil
}
