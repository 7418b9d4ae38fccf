// Package pipeline orchestrates one research run: identity resolution,
// concurrent structured and crawler collection, filing extraction,
// reconciliation, analysis, and artifact output.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/analysis"
	"github.com/sells-group/ipo-research-cli/internal/collect"
	"github.com/sells-group/ipo-research-cli/internal/extract"
	"github.com/sells-group/ipo-research-cli/internal/filing"
	"github.com/sells-group/ipo-research-cli/internal/identity"
	"github.com/sells-group/ipo-research-cli/internal/model"
	"github.com/sells-group/ipo-research-cli/internal/reconcile"
	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/internal/store"
	"github.com/sells-group/ipo-research-cli/pkg/krx"
	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

// RunOptions are the per-run switches.
type RunOptions struct {
	// SkipFiling disables the archive download and extraction branch.
	SkipFiling bool
	// SkipAnalysis disables the narrative report.
	SkipAnalysis bool
}

// Pipeline wires the stages together. Stages are built over the client
// interfaces, so tests fake the transports rather than the stages.
type Pipeline struct {
	Resolver   *identity.Resolver
	Structured *collect.StructuredCollector
	Crawler    *collect.DemandCrawler
	Filings    *filing.Fetcher
	Extractor  *extract.Extractor
	Analyst    *analysis.Analyst
	News       naver.Client
	KRX        krx.Client
	Writer     ArtifactWriter
	Store      store.Store

	// KRXTolerance is the relative divergence the cross-check flags.
	KRXTolerance float64
	// Headlines caps the news attachment.
	Headlines int
	// SectionChars bounds each extracted filing section, zero for default.
	SectionChars int
}

// ArtifactWriter is the output surface the pipeline needs.
type ArtifactWriter interface {
	WriteJSON(rec *model.CanonicalRecord) (string, error)
	WriteMarkdown(rec *model.CanonicalRecord, report string) (string, error)
	WriteExcel(rec *model.CanonicalRecord) (string, error)
}

// Result is what a run hands back to the command layer.
type Result struct {
	Report RunReport
	Record *model.CanonicalRecord
}

// Run executes the full pipeline for one company name.
func (p *Pipeline) Run(ctx context.Context, companyName string, opts RunOptions) (*Result, error) {
	log := zap.L().With(zap.String("company", companyName))
	started := time.Now().UTC()
	runID := uuid.NewString()
	log.Info("pipeline: run starting", zap.String("run_id", runID))

	tracker := &stageTracker{}
	result := &Result{}

	// Identity is the one stage nothing can proceed without.
	var ident *model.Identity
	status := tracker.run("identity", func() (StageStatus, string) {
		var err error
		ident, err = p.Resolver.Resolve(ctx, companyName)
		if err != nil {
			return StageFailed, eris.ToString(err, false)
		}
		return StageSucceeded, ""
	})
	if status == StageFailed {
		return p.finish(ctx, result, tracker, runID, companyName, started, nil)
	}

	structured, demand := p.collectBoth(ctx, tracker, ident, companyName)
	if structured == nil {
		return p.finish(ctx, result, tracker, runID, companyName, started, nil)
	}

	inputs := reconcile.Inputs{
		Identity:   ident,
		Structured: structured,
		Demand:     demand,
	}
	p.runExtraction(ctx, tracker, structured, opts, &inputs)

	rec := reconcile.Build(inputs)
	result.Record = rec

	p.crossCheck(ctx, tracker, rec)
	headlines := p.fetchHeadlines(ctx, tracker, companyName)
	result.Report.Headlines = headlines

	var narrative string
	if opts.SkipAnalysis {
		tracker.skip("analysis", "disabled by flag")
	} else {
		tracker.run("analysis", func() (StageStatus, string) {
			var err error
			narrative, err = p.Analyst.Generate(ctx, rec, headlines)
			if err != nil {
				return StageDegraded, eris.ToString(err, false)
			}
			return StageSucceeded, ""
		})
	}

	tracker.run("output", func() (StageStatus, string) {
		var firstErr error
		for _, write := range []func() (string, error){
			func() (string, error) { return p.Writer.WriteJSON(rec) },
			func() (string, error) { return p.Writer.WriteMarkdown(rec, narrative) },
			func() (string, error) { return p.Writer.WriteExcel(rec) },
		} {
			path, err := write()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			result.Report.Artifacts = append(result.Report.Artifacts, path)
		}
		if firstErr != nil {
			return StageDegraded, eris.ToString(firstErr, false)
		}
		return StageSucceeded, ""
	})

	return p.finish(ctx, result, tracker, runID, companyName, started, rec)
}

// collectBoth runs the regulatory collector and the demand crawler in
// parallel. A crawler miss or failure degrades; only a fully failed
// structured stage stops the run.
func (p *Pipeline) collectBoth(ctx context.Context, tracker *stageTracker, ident *model.Identity, companyName string) (*collect.StructuredResult, *collect.DemandData) {
	var (
		structured *collect.StructuredResult
		sErr       error
		demand     *collect.DemandData
		dErr       error
		wg         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		structured, sErr = p.Structured.Collect(ctx, ident)
	}()
	go func() {
		defer wg.Done()
		demand, dErr = p.Crawler.Collect(ctx, companyName)
	}()
	wg.Wait()

	tracker.run("collect.structured", func() (StageStatus, string) {
		if sErr != nil {
			return StageFailed, eris.ToString(sErr, false)
		}
		if len(structured.Gaps) > 0 {
			return StageDegraded, "partial structured data"
		}
		return StageSucceeded, ""
	})
	tracker.run("collect.crawler", func() (StageStatus, string) {
		switch {
		case eris.Is(dErr, resilience.ErrNotFound):
			return StageDegraded, "company not listed on demand-forecast pages"
		case dErr != nil:
			return StageDegraded, eris.ToString(dErr, false)
		case len(demand.Diagnostics) > 0:
			return StageDegraded, "partial crawler data"
		}
		return StageSucceeded, ""
	})

	if sErr != nil {
		return nil, nil
	}
	if dErr != nil {
		demand = nil
	}
	return structured, demand
}

// runExtraction populates the extraction inputs from the registration filing
// archive. The branch degrades field by field; a missing archive skips it.
func (p *Pipeline) runExtraction(ctx context.Context, tracker *stageTracker, structured *collect.StructuredResult, opts RunOptions, inputs *reconcile.Inputs) {
	if opts.SkipFiling {
		tracker.skip("extract", "disabled by flag")
		return
	}
	receipt := structured.RegistrationFiling.ReceiptNo
	if receipt == "" {
		tracker.skip("extract", "no registration filing to download")
		inputs.Extra = append(inputs.Extra, model.Diagnostic{
			FieldPath: "filing.archive",
			Kind:      model.DiagGap,
			Detail:    "no registration filing located",
		})
		return
	}

	tracker.run("extract", func() (StageStatus, string) {
		dir, err := p.Filings.Fetch(ctx, receipt)
		if err != nil {
			inputs.Extra = append(inputs.Extra, model.Diagnostic{
				FieldPath: "filing.archive",
				Kind:      model.DiagGap,
				Detail:    eris.ToString(err, false),
			})
			return StageDegraded, eris.ToString(err, false)
		}
		doc, err := filing.LoadDocument(dir)
		if err != nil {
			return StageDegraded, eris.ToString(err, false)
		}
		sections := filing.Sections(doc, p.SectionChars)

		// A section the document does not carry is a gap, not an oracle call.
		degraded := false
		if sec := sections[filing.SectionLockup]; sec == "" {
			inputs.LockupErr = eris.New("lockup section not located in filing")
			degraded = true
		} else {
			inputs.Lockup, inputs.LockupErr = p.Extractor.Lockup(ctx, sec)
			if inputs.LockupErr != nil {
				degraded = true
			}
		}

		if sec := sections[filing.SectionBusiness]; sec == "" {
			degraded = true
			inputs.Extra = append(inputs.Extra, extractGap("business", eris.New("section not located in filing")))
		} else if inputs.Business, err = p.Extractor.Business(ctx, sec); err != nil {
			degraded = true
			inputs.Extra = append(inputs.Extra, extractGap("business", err))
		}

		if sec := sections[filing.SectionValuation]; sec == "" {
			degraded = true
			inputs.Extra = append(inputs.Extra, extractGap("valuation", eris.New("section not located in filing")))
		} else if inputs.Valuation, err = p.Extractor.Valuation(ctx, sec, sections[filing.SectionPeers]); err != nil {
			degraded = true
			inputs.Extra = append(inputs.Extra, extractGap("valuation", err))
		}

		// Filing financials only matter when the statements API came up
		// short, so the extra oracle calls are spent conditionally.
		if len(structured.Financials) == 0 {
			if sec := sections[filing.SectionFinancials]; sec != "" {
				inputs.FilingFinancials, err = p.Extractor.Financials(ctx, sec)
				if err != nil {
					degraded = true
					inputs.Extra = append(inputs.Extra, extractGap("financials", err))
				}
			}
		}

		if degraded {
			return StageDegraded, "one or more extraction phases failed"
		}
		return StageSucceeded, ""
	})
}

func (p *Pipeline) crossCheck(ctx context.Context, tracker *stageTracker, rec *model.CanonicalRecord) {
	if p.KRX == nil || !p.KRX.Available() {
		tracker.skip("crosscheck", "exchange API not configured")
		return
	}
	if rec.Identity.StockCode == "" {
		tracker.skip("crosscheck", "no stock code resolved")
		return
	}
	tracker.run("crosscheck", func() (StageStatus, string) {
		fin, err := p.KRX.LatestFinancial(ctx, rec.Identity.StockCode)
		if err != nil {
			if eris.Is(err, resilience.ErrNotFound) {
				return StageDegraded, "stock code not covered by exchange data"
			}
			return StageDegraded, eris.ToString(err, false)
		}
		reconcile.CrossCheck(rec, fin, p.KRXTolerance)
		return StageSucceeded, ""
	})
}

func (p *Pipeline) fetchHeadlines(ctx context.Context, tracker *stageTracker, companyName string) []naver.Headline {
	if p.News == nil || !p.News.Available() {
		return nil
	}
	limit := p.Headlines
	if limit <= 0 {
		limit = 5
	}
	var headlines []naver.Headline
	tracker.run("news", func() (StageStatus, string) {
		var err error
		headlines, err = p.News.SearchNews(ctx, companyName, limit)
		if err != nil {
			return StageDegraded, eris.ToString(err, false)
		}
		return StageSucceeded, ""
	})
	return headlines
}

// finish assembles the run report and persists it. Persistence failure is
// logged, never fatal: the artifacts on disk are the deliverable.
func (p *Pipeline) finish(ctx context.Context, result *Result, tracker *stageTracker, runID, companyName string, started time.Time, rec *model.CanonicalRecord) (*Result, error) {
	report := &result.Report
	report.RunID = runID
	report.Company = companyName
	report.Stages = tracker.stages
	report.Status = tracker.overall()
	report.StartedAt = started
	report.FinishedAt = time.Now().UTC()
	if rec != nil {
		report.Diagnostics = len(rec.Diagnostics)
	}

	if p.Store != nil {
		blob, err := json.Marshal(report)
		if err == nil {
			err = p.Store.SaveRun(ctx, store.RunRecord{
				ID:         runID,
				Company:    companyName,
				Status:     string(report.Status),
				Report:     blob,
				StartedAt:  report.StartedAt,
				FinishedAt: report.FinishedAt,
			})
		}
		if err != nil {
			zap.L().Warn("pipeline: save run record", zap.Error(err))
		}
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", runID),
		zap.String("status", string(report.Status)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	if report.Status == RunAborted {
		return result, eris.Errorf("pipeline: run aborted at stage %s", lastFailedStage(tracker.stages))
	}
	return result, nil
}

func lastFailedStage(stages []StageReport) string {
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].Status == StageFailed {
			return stages[i].Name
		}
	}
	return "unknown"
}

func extractGap(phase string, err error) model.Diagnostic {
	return model.Diagnostic{
		FieldPath: "extract." + phase,
		Kind:      model.DiagGap,
		Detail:    eris.ToString(err, false),
	}
}
