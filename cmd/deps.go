package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ipo-research-cli/internal/analysis"
	"github.com/sells-group/ipo-research-cli/internal/collect"
	"github.com/sells-group/ipo-research-cli/internal/config"
	"github.com/sells-group/ipo-research-cli/internal/extract"
	"github.com/sells-group/ipo-research-cli/internal/filing"
	"github.com/sells-group/ipo-research-cli/internal/identity"
	"github.com/sells-group/ipo-research-cli/internal/output"
	"github.com/sells-group/ipo-research-cli/internal/pipeline"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/internal/store"
	"github.com/sells-group/ipo-research-cli/pkg/anthropic"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
	"github.com/sells-group/ipo-research-cli/pkg/ipostock"
	"github.com/sells-group/ipo-research-cli/pkg/krx"
	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

// deps is the wired application graph for one invocation.
type deps struct {
	store    store.Store
	dart     dart.Client
	resolver *identity.Resolver
	pipeline *pipeline.Pipeline
}

func (d *deps) close() {
	if d.store != nil {
		_ = d.store.Close()
	}
}

// buildDeps constructs every client and stage from configuration.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	if cfg.DART.Key == "" {
		return nil, eris.New("IPO_DART_KEY is required")
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("IPO_ANTHROPIC_KEY is required")
	}

	if dir := filepath.Dir(cfg.Identity.CachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "create cache dir")
		}
	}
	st, err := store.NewSQLite(cfg.Identity.CachePath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	dartClient := dart.NewClient(dart.Options{
		Key:        cfg.DART.Key,
		BaseURL:    cfg.DART.BaseURL,
		Timeout:    time.Duration(cfg.DART.TimeoutSecs) * time.Second,
		RatePerSec: cfg.DART.RatePerSec,
		Policy:     resilience.PolicyWithAttempts(cfg.DART.MaxAttempts),
	})
	ipoClient := ipostock.NewClient(ipostock.Options{
		BaseURL:   cfg.IPOStock.BaseURL,
		UserAgent: cfg.IPOStock.UserAgent,
		Timeout:   time.Duration(cfg.IPOStock.TimeoutSecs) * time.Second,
		Pages:     cfg.IPOStock.ListPages,
		Policy:    resilience.PolicyWithAttempts(cfg.IPOStock.MaxAttempts),
	})
	oracle := anthropic.NewClient(cfg.Anthropic.Key)

	resolver := identity.NewResolver(identity.Options{
		Store:  st,
		DART:   dartClient,
		MaxAge: time.Duration(cfg.Identity.CacheTTLHours) * time.Hour,
	})

	writer, err := output.NewWriter(cfg.Output.Dir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := &pipeline.Pipeline{
		Resolver:   resolver,
		Structured: collect.NewStructuredCollector(dartClient, cfg.DART.Years),
		Crawler:    collect.NewDemandCrawler(ipoClient),
		Filings:    filing.NewFetcher(dartClient, cfg.Extract.ArchiveDir),
		Extractor: extract.NewExtractor(extract.Options{
			Oracle:            oracle,
			Model:             cfg.Anthropic.Model,
			MaxTokens:         int64(cfg.Anthropic.MaxTokens),
			ChunkChars:        cfg.Anthropic.ChunkChars,
			MaxConcurrent:     cfg.Anthropic.MaxConcurrent,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
			ValidationRetries: cfg.Anthropic.ValidationRetries,
		}),
		Analyst: analysis.NewAnalyst(oracle, analysis.Options{Model: cfg.Anthropic.Model}),
		News: naver.NewClient(naver.Options{
			ClientID:     cfg.Naver.ClientID,
			ClientSecret: cfg.Naver.ClientSecret,
		}),
		KRX: krx.NewClient(krx.Options{
			Key:     cfg.KRX.Key,
			BaseURL: cfg.KRX.BaseURL,
		}),
		Writer:       writer,
		Store:        st,
		KRXTolerance: cfg.KRX.ToleranceP,
		SectionChars: cfg.Extract.SectionChars,
	}

	return &deps{store: st, dart: dartClient, resolver: resolver, pipeline: p}, nil
}
