// Package identity resolves a company name to its regulatory identifiers
// through the locally cached corp-code master.
package identity

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/internal/store"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// Resolver maps company names to corp codes, refreshing the cached master
// when it is stale or when a lookup misses against fresh data.
type Resolver struct {
	store    store.Store
	dart     dart.Client
	maxAge   time.Duration
	profiles bool
}

// Options configures the resolver.
type Options struct {
	Store store.Store
	DART  dart.Client

	// MaxAge is how old the cached master may be before a lookup triggers
	// a refresh.
	MaxAge time.Duration

	// SkipProfile disables the profile call that fills market segment.
	SkipProfile bool
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	if opts.MaxAge == 0 {
		opts.MaxAge = 168 * time.Hour
	}
	return &Resolver{
		store:    opts.Store,
		dart:     opts.DART,
		maxAge:   opts.MaxAge,
		profiles: !opts.SkipProfile,
	}
}

// Resolve finds the identity for a company name. Lookup order: exact cache
// match, refresh-then-exact when the cache was stale or missed, then partial
// match preferring listed companies. Resolving the same name twice yields the
// same identity with no extra refresh.
func (r *Resolver) Resolve(ctx context.Context, name string) (*model.Identity, error) {
	refreshed, err := r.refreshIfStale(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := r.store.FindCorpExact(ctx, name)
	if err != nil && !eris.Is(err, resilience.ErrNotFound) {
		return nil, err
	}

	if entry == nil && !refreshed {
		// Miss against a possibly outdated master: refresh once and retry.
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
		entry, err = r.store.FindCorpExact(ctx, name)
		if err != nil && !eris.Is(err, resilience.ErrNotFound) {
			return nil, err
		}
	}

	if entry == nil {
		entry, err = r.partialMatch(ctx, name)
		if err != nil {
			return nil, err
		}
	}

	identity := &model.Identity{
		Name:      entry.CorpName,
		CorpCode:  entry.CorpCode,
		StockCode: entry.StockCode,
	}
	if r.profiles {
		r.attachProfile(ctx, identity)
	}

	zap.L().Info("identity resolved",
		zap.String("name", name),
		zap.String("corp_code", identity.CorpCode),
		zap.String("stock_code", identity.StockCode),
	)
	return identity, nil
}

// partialMatch falls back to substring matching. Several candidates are fine
// as long as the ordering is deterministic; the first (listed, closest name)
// wins.
func (r *Resolver) partialMatch(ctx context.Context, name string) (*dart.CorpEntry, error) {
	matches, err := r.store.FindCorpPartial(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, eris.Wrapf(resilience.ErrNotFound, "identity: company %q", name)
	}
	if len(matches) > 1 {
		zap.L().Warn("identity: ambiguous name, best candidate chosen",
			zap.String("name", name),
			zap.String("chosen", matches[0].CorpName),
			zap.Int("candidates", len(matches)),
		)
	}
	return &matches[0], nil
}

// attachProfile fills market segment from the company profile. Best effort:
// a profile failure leaves the segment empty rather than failing resolution.
func (r *Resolver) attachProfile(ctx context.Context, identity *model.Identity) {
	profile, err := r.dart.Company(ctx, identity.CorpCode)
	if err != nil {
		zap.L().Warn("identity: profile lookup failed",
			zap.String("corp_code", identity.CorpCode), zap.Error(err))
		return
	}
	identity.MarketSegment = profile.MarketSegment()
	if identity.StockCode == "" {
		identity.StockCode = profile.StockCode
	}
}

// refreshIfStale refreshes the master when it is older than MaxAge. Returns
// whether a refresh happened so Resolve avoids refreshing twice.
func (r *Resolver) refreshIfStale(ctx context.Context) (bool, error) {
	refreshedAt, err := r.store.CorpCodesRefreshedAt(ctx)
	if err != nil {
		return false, err
	}
	if time.Since(refreshedAt) < r.maxAge {
		return false, nil
	}
	if err := r.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Refresh downloads the corp-code master and replaces the cache wholesale.
func (r *Resolver) Refresh(ctx context.Context) error {
	entries, err := r.dart.DownloadCorpCodes(ctx)
	if err != nil {
		return eris.Wrap(err, "identity: refresh corp codes")
	}
	if err := r.store.ReplaceCorpCodes(ctx, entries); err != nil {
		return eris.Wrap(err, "identity: store corp codes")
	}
	zap.L().Info("identity: corp code cache refreshed", zap.Int("entries", len(entries)))
	return nil
}
