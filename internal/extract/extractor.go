// Package extract turns filing sections into structured records through the
// model, with schema validation and corrective retry on bad output.
package extract

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/pkg/anthropic"
)

// Extractor prompts the model per section chunk and merges validated output.
type Extractor struct {
	oracle  anthropic.Client
	limiter *rate.Limiter

	model         string
	maxTokens     int64
	chunkChars    int
	maxConcurrent int
	retries       int
}

// Options configures the extractor.
type Options struct {
	Oracle            anthropic.Client
	Model             string
	MaxTokens         int64
	ChunkChars        int
	MaxConcurrent     int
	RequestsPerMinute int

	// ValidationRetries is how many corrective re-prompts a chunk gets
	// after a schema validation failure.
	ValidationRetries int
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5-20250929"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.ChunkChars == 0 {
		opts.ChunkChars = 15000
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = 4
	}
	if opts.RequestsPerMinute == 0 {
		opts.RequestsPerMinute = 50
	}
	if opts.ValidationRetries == 0 {
		opts.ValidationRetries = 2
	}
	return &Extractor{
		oracle:        opts.Oracle,
		limiter:       rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.MaxConcurrent),
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		chunkChars:    opts.ChunkChars,
		maxConcurrent: opts.MaxConcurrent,
		retries:       opts.ValidationRetries,
	}
}

// Lockup extracts the unlock schedule. Chunk rows merge by horizon, a later
// chunk replacing an earlier one for the same horizon since document order
// runs from summary toward the detailed table.
func (e *Extractor) Lockup(ctx context.Context, section string) ([]model.LockupEntry, error) {
	results, err := forChunks(ctx, e, section, "lockup", func(ctx context.Context, chunk string) ([]model.LockupEntry, error) {
		return callValidated(ctx, e, "lockup", lockupPrompt, chunk, func(text string) ([]model.LockupEntry, error) {
			var rows []lockupRaw
			if derr := decodeInto(text, &rows); derr != nil {
				return nil, schemaErr("lockup", "response is not a JSON array: %v", derr)
			}
			return validateLockup(rows)
		})
	})
	if err != nil {
		return nil, err
	}

	var merged []model.LockupEntry
	index := make(map[string]int)
	for _, entries := range results {
		for _, entry := range entries {
			if at, seen := index[entry.Horizon]; seen {
				merged[at] = entry
				continue
			}
			index[entry.Horizon] = len(merged)
			merged = append(merged, entry)
		}
	}
	if err := model.ValidateLockup(merged); err != nil {
		return nil, schemaErr("lockup", "merged schedule invalid: %s", err.Error())
	}
	return merged, nil
}

// Business extracts the business summary. Chunks fill each other's blanks;
// the first chunk naming a field wins, products merge by name.
func (e *Extractor) Business(ctx context.Context, section string) (*model.BusinessSummary, error) {
	results, err := forChunks(ctx, e, section, "business", func(ctx context.Context, chunk string) (*model.BusinessSummary, error) {
		return callValidated(ctx, e, "business", businessPrompt, chunk, func(text string) (*model.BusinessSummary, error) {
			var raw businessRaw
			if derr := decodeInto(text, &raw); derr != nil {
				return nil, schemaErr("business", "response is not a JSON object: %v", derr)
			}
			return validateBusiness(raw)
		})
	})
	if err != nil {
		return nil, err
	}

	merged := &model.BusinessSummary{}
	seenProduct := make(map[string]bool)
	for _, part := range results {
		mergeText(&merged.Overview, part.Overview)
		mergeText(&merged.MainBusiness, part.MainBusiness)
		mergeText(&merged.KeyTechnology, part.KeyTechnology)
		mergeText(&merged.GrowthStrategy, part.GrowthStrategy)
		if len(merged.Competitors) == 0 {
			merged.Competitors = part.Competitors
		}
		for _, p := range part.Products {
			if !seenProduct[p.Name] {
				seenProduct[p.Name] = true
				merged.Products = append(merged.Products, p)
			}
		}
	}
	return merged, nil
}

// Valuation runs the two-pass peer valuation: the pricing summary from the
// underwriter opinion section, then the peer table. A missing peer section
// yields a partial valuation, not a failure.
func (e *Extractor) Valuation(ctx context.Context, valuationSection, peerSection string) (*model.ValuationDetail, error) {
	detail, err := callValidated(ctx, e, "valuation", valuationPrompt, clip(valuationSection, e.chunkChars),
		func(text string) (*model.ValuationDetail, error) {
			var raw valuationRaw
			if derr := decodeInto(text, &raw); derr != nil {
				return nil, schemaErr("valuation", "response is not a JSON object: %v", derr)
			}
			return validateValuation(raw)
		})
	if err != nil {
		return nil, err
	}

	if peerSection == "" {
		zap.L().Warn("extract: peer section absent, valuation is partial")
		return detail, nil
	}

	results, err := forChunks(ctx, e, peerSection, "peers", func(ctx context.Context, chunk string) ([]model.PeerCompany, error) {
		return callValidated(ctx, e, "peers", peersPrompt, chunk, func(text string) ([]model.PeerCompany, error) {
			var rows []peerRaw
			if derr := decodeInto(text, &rows); derr != nil {
				return nil, schemaErr("peers", "response is not a JSON array: %v", derr)
			}
			return validatePeers(rows)
		})
	})
	if err != nil {
		// Pricing summary survived; peers alone failing leaves it partial.
		zap.L().Warn("extract: peer extraction failed, valuation is partial", zap.Error(err))
		return detail, nil
	}

	seen := make(map[string]int)
	for _, batch := range results {
		for _, peer := range batch {
			if at, dup := seen[peer.Name]; dup {
				detail.Peers[at] = peer
				continue
			}
			seen[peer.Name] = len(detail.Peers)
			detail.Peers = append(detail.Peers, peer)
		}
	}
	return detail, nil
}

// Financials extracts fiscal years from the filing's summary financials,
// used only when the structured statement endpoint had nothing. Rows merge
// by year, later chunks winning.
func (e *Extractor) Financials(ctx context.Context, section string) ([]model.FinancialYear, error) {
	results, err := forChunks(ctx, e, section, "financials", func(ctx context.Context, chunk string) ([]model.FinancialYear, error) {
		return callValidated(ctx, e, "financials", financialsPrompt, chunk, func(text string) ([]model.FinancialYear, error) {
			var rows []financialRaw
			if derr := decodeInto(text, &rows); derr != nil {
				return nil, schemaErr("financials", "response is not a JSON array: %v", derr)
			}
			return validateFinancials(rows)
		})
	})
	if err != nil {
		return nil, err
	}

	byYear := make(map[string]model.FinancialYear)
	for _, batch := range results {
		for _, fy := range batch {
			byYear[fy.Year] = fy
		}
	}
	years := make([]model.FinancialYear, 0, len(byYear))
	for _, fy := range byYear {
		years = append(years, fy)
	}
	return model.DeriveGrowth(model.SortFinancials(years)), nil
}

// forChunks fans a section's chunks out to fn with bounded concurrency.
// Chunks that exhaust their retries are dropped; the call errors only when
// every chunk failed, returning the last failure.
func forChunks[T any](ctx context.Context, e *Extractor, section, name string, fn func(context.Context, string) (T, error)) ([]T, error) {
	chunks := splitChunks(section, e.chunkChars)

	results := make([]T, len(chunks))
	ok := make([]bool, len(chunks))
	var mu sync.Mutex
	var lastErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := fn(gctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				zap.L().Warn("extract: chunk failed",
					zap.String("section", name),
					zap.Int("chunk", i),
					zap.Error(err),
				)
				return nil
			}
			results[i], ok[i] = out, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := results[:0]
	for i := range results {
		if ok[i] {
			kept = append(kept, results[i])
		}
	}
	if len(kept) == 0 {
		return nil, lastErr
	}
	return kept, nil
}

// callValidated prompts the model and validates the response, re-prompting
// with the validation error up to the retry cap. The returned error after
// exhaustion is the final SchemaValidationError.
func callValidated[T any](ctx context.Context, e *Extractor, phase, prompt, content string, validate func(string) (T, error)) (T, error) {
	var zero T

	messages := []anthropic.Message{
		{Role: "user", Content: prompt + "\n\n---\n\n" + content},
	}

	for attempt := 0; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "extract: rate limiter wait")
		}

		resp, err := e.oracle.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
			Messages:  messages,
		})
		if err != nil {
			return zero, eris.Wrap(err, fmt.Sprintf("extract: %s request", phase))
		}
		resp.Usage.LogCost(resp.Model, "extract."+phase)

		out, verr := validate(resp.Text())
		if verr == nil {
			return out, nil
		}

		var sv *resilience.SchemaValidationError
		if !eris.As(verr, &sv) || attempt >= e.retries {
			return zero, verr
		}

		zap.L().Info("extract: validation failed, re-prompting",
			zap.String("section", phase),
			zap.Int("attempt", attempt+1),
			zap.String("detail", sv.Detail),
		)
		messages = append(messages,
			anthropic.Message{Role: "assistant", Content: resp.Text()},
			anthropic.Message{Role: "user", Content: fmt.Sprintf(correctionPrompt, sv.Detail)},
		)
	}
}

func mergeText(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func clip(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
