package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"financeos/internal/cache"
	"financeos/internal/core"
	"financeos/internal/forecast"
	"financeos/internal/metrics"
	"financeos/internal/storage"
)

const (
	dashboardCacheSize = 256
	dashboardCacheTTL  = 5 * time.Minute
)

// ReadStore is the subset of storage the read paths use.
type ReadStore interface {
	storage.TransactionStore
	storage.RuleStore
	storage.SnapshotStore
}

type DashboardQuery struct {
	AccountID string
	// AsOf defaults to today (UTC) when zero.
	AsOf      core.Date
	ChartDays int
	// BufferTarget defaults to the service default when nil.
	BufferTarget *decimal.Decimal
}

// DashboardService builds dashboards from the ledger and the active rules.
// Results are cached per account generation and concurrent identical
// requests share one computation.
type DashboardService struct {
	store         ReadStore
	cache         *cache.LRUCache[metrics.Dashboard]
	generations   *cache.Generations
	group         singleflight.Group
	defaultBuffer decimal.Decimal
	now           func() time.Time
}

func NewDashboardService(store ReadStore, defaultBuffer decimal.Decimal) *DashboardService {
	return &DashboardService{
		store:         store,
		cache:         cache.NewLRUCache[metrics.Dashboard](dashboardCacheSize, dashboardCacheTTL),
		generations:   cache.NewGenerations(),
		defaultBuffer: defaultBuffer,
		now:           time.Now,
	}
}

// Cache exposes the dashboard cache for registration with a cache.Manager.
func (s *DashboardService) Cache() cache.Cleaner {
	return s.cache
}

// Invalidate makes every cached dashboard of the account stale.
func (s *DashboardService) Invalidate(accountID string) {
	gen := s.generations.Bump(accountID)
	removed := s.cache.DeletePrefix(accountID + "|")
	slog.Debug("Dashboard cache invalidated", "account_id", accountID, "generation", gen, "removed", removed)
}

func (s *DashboardService) Dashboard(ctx context.Context, q DashboardQuery) (metrics.Dashboard, error) {
	accountID := strings.TrimSpace(q.AccountID)
	if accountID == "" {
		return metrics.Dashboard{}, &core.AggregationInputError{Field: "accountId", Reason: "must not be empty"}
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = core.DateOf(s.now())
	}
	buffer := s.defaultBuffer
	if q.BufferTarget != nil {
		buffer = *q.BufferTarget
	}

	key := fmt.Sprintf("%s|%d|%s|%d|%s", accountID, s.generations.Get(accountID), asOf, q.ChartDays, buffer.StringFixed(2))
	if d, ok := s.cache.Get(key); ok {
		slog.DebugContext(ctx, "Dashboard cache hit", "account_id", accountID, "as_of", asOf.String())
		return d, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		d, err := s.compute(ctx, accountID, asOf, q.ChartDays, buffer)
		if err != nil {
			return metrics.Dashboard{}, err
		}
		s.cache.Set(key, d)
		return d, nil
	})
	if err != nil {
		return metrics.Dashboard{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Dashboard computation shared", "account_id", accountID)
	}
	return v.(metrics.Dashboard), nil
}

func (s *DashboardService) compute(ctx context.Context, accountID string, asOf core.Date, chartDays int, buffer decimal.Decimal) (metrics.Dashboard, error) {
	txs, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		return metrics.Dashboard{}, fmt.Errorf("load ledger: %w", err)
	}
	rules, err := s.store.ListRules(ctx, accountID, true)
	if err != nil {
		return metrics.Dashboard{}, fmt.Errorf("load rules: %w", err)
	}
	snap, err := s.store.LatestSnapshot(ctx, accountID)
	if err != nil {
		return metrics.Dashboard{}, fmt.Errorf("load snapshot: %w", err)
	}
	// A snapshot holds the opening balance of the day it was taken.
	if snap != nil && !core.DateOf(snap.Timestamp).Equal(asOf) {
		snap = nil
	}

	horizon := max(chartDays, metrics.PendingWindowDays)
	projected, err := forecast.Project(rules, horizon, asOf)
	if err != nil {
		var ruleErr *core.InvalidRuleError
		if !errors.As(err, &ruleErr) {
			return metrics.Dashboard{}, err
		}
		// Stored rules are validated on write; a bad one should not blank the dashboard.
		slog.WarnContext(ctx, "Skipping invalid recurring rules", "account_id", accountID, "error", err)
	}

	return metrics.Aggregate(metrics.Input{
		Ledger:       txs,
		Projected:    projected,
		BufferTarget: buffer,
		AsOf:         asOf,
		ChartDays:    chartDays,
		Snapshot:     snap,
	})
}

// Forecast projects the account's active rules over the horizon.
func (s *DashboardService) Forecast(ctx context.Context, accountID string, asOf core.Date, horizonDays int) ([]core.Transaction, error) {
	if asOf.IsZero() {
		asOf = core.DateOf(s.now())
	}
	rules, err := s.store.ListRules(ctx, accountID, true)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return forecast.Project(rules, horizonDays, asOf)
}
