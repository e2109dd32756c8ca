// Package pipeline orchestrates one reconciliation run: check intake,
// consensus extraction, invoice matching, sink fan-out, and ledger
// bookkeeping.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/check-recon/internal/config"
	"github.com/sells-group/check-recon/internal/consensus"
	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/intake"
	"github.com/sells-group/check-recon/internal/invoice"
	"github.com/sells-group/check-recon/internal/match"
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/oracle"
	"github.com/sells-group/check-recon/internal/sink"
	"github.com/sells-group/check-recon/internal/store"
	"github.com/sells-group/check-recon/pkg/anthropic"
)

// Options adjust a single run without touching shared configuration.
type Options struct {
	// ExpectedTotalCents is the deposit slip total for the scan batch.
	// Nonzero enables the batch total cross-check.
	ExpectedTotalCents int64
	// Dir and FTPURL replace the configured intake source for this run
	// when either is set. FTP wins when both resolve.
	Dir    string
	FTPURL string
}

// Pipeline owns one reconciliation flow end to end. Collaborators are
// injected so every stage can be faked in tests.
type Pipeline struct {
	cfg     *config.Config
	oracle  consensus.Oracle
	batcher anthropic.Client // nil disables the message-batch path
	source  invoice.Source
	engine  *match.Engine
	sinks   sink.ResultSink
	store   store.Store
	profile fields.Profile
}

// New wires a Pipeline from its collaborators. The batcher client is
// optional; without it every sample is a direct API call.
func New(
	cfg *config.Config,
	o consensus.Oracle,
	batcher anthropic.Client,
	source invoice.Source,
	sinks sink.ResultSink,
	st store.Store,
	profile fields.Profile,
) (*Pipeline, error) {
	engine, err := match.NewEngine(cfg.Match)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		oracle:  o,
		batcher: batcher,
		source:  source,
		engine:  engine,
		sinks:   sinks,
		store:   st,
		profile: profile,
	}, nil
}

// Run creates a ledger entry and reconciles against it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	summary, err := p.Execute(ctx, run.ID, opts)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		return run, err
	}

	run.Status = model.RunStatusComplete
	run.Summary = summary
	return run, nil
}

// Execute reconciles against a run the caller already created and records
// the outcome on it. The webhook surface uses this directly so it can hand
// back the run ID before the work starts.
func (p *Pipeline) Execute(ctx context.Context, runID string, opts Options) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting reconciliation")

	summary, err := p.reconcile(ctx, runID, opts, log)
	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		if failErr := p.store.FailRun(ctx, runID, err); failErr != nil {
			log.Warn("pipeline: record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	if err := p.store.CompleteRun(ctx, runID, summary); err != nil {
		log.Warn("pipeline: record run completion", zap.Error(err))
	}

	log.Info("pipeline: run complete",
		zap.Int("checks", summary.Checks),
		zap.Int("matched", summary.Matched),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("failed_extractions", summary.FailedExtractions),
		zap.Int64("matched_cents", summary.MatchedCents),
		zap.Int64("duration_ms", summary.DurationMS),
	)
	return summary, nil
}

func (p *Pipeline) reconcile(ctx context.Context, runID string, opts Options, log *zap.Logger) (*model.RunSummary, error) {
	start := time.Now()

	imgs, err := p.fetchImages(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: intake complete", zap.Int("images", len(imgs)))

	if len(imgs) == 0 {
		return &model.RunSummary{DurationMS: time.Since(start).Milliseconds()}, nil
	}

	builder, err := consensus.NewBuilder(p.pickOracle(ctx, imgs, log), p.cfg.Extract.Samples)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build consensus")
	}
	records, failed := p.extract(ctx, builder, imgs, log)
	log.Info("pipeline: extraction complete",
		zap.Int("records", len(records)),
		zap.Int("failed", failed),
	)

	invoices, err := p.source.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list invoices")
	}
	log.Info("pipeline: invoices listed", zap.Int("invoices", len(invoices)))

	results := p.engine.Match(records, invoices)

	summary := &model.RunSummary{
		Checks:            len(imgs),
		FailedExtractions: failed,
	}
	for i := range results {
		if results[i].Matched && results[i].Invoice != nil {
			summary.Matched++
			summary.MatchedCents += results[i].Invoice.AmountCents
		} else {
			summary.Unmatched++
		}
	}

	if opts.ExpectedTotalCents > 0 {
		if diff := abs(summary.MatchedCents - opts.ExpectedTotalCents); diff > 1 {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("matched total differs from expected total by %s", dollars(diff)))
			log.Warn("pipeline: batch total mismatch",
				zap.Int64("matched_cents", summary.MatchedCents),
				zap.Int64("expected_cents", opts.ExpectedTotalCents),
			)
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()

	run := &model.Run{ID: runID, Status: model.RunStatusComplete, Summary: summary}
	if err := p.sinks.Publish(ctx, run, results); err != nil {
		log.Error("pipeline: sink fan-out failed", zap.Error(err))
		summary.Warnings = append(summary.Warnings, err.Error())
	}

	return summary, nil
}

// fetchImages pulls scans from the FTP lockbox when configured, otherwise
// from the local intake directory.
func (p *Pipeline) fetchImages(ctx context.Context, opts Options) ([]model.CheckImage, error) {
	ftpURL, dir := p.cfg.Intake.FTPURL, p.cfg.Intake.Dir
	if opts.FTPURL != "" || opts.Dir != "" {
		ftpURL, dir = opts.FTPURL, opts.Dir
	}

	if ftpURL != "" {
		timeout := time.Duration(p.cfg.Intake.FTPTimeoutSecs) * time.Second
		imgs, err := intake.FromFTP(ctx, ftpURL, timeout)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: ftp intake")
		}
		return imgs, nil
	}

	imgs, err := intake.FromDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: directory intake")
	}
	return imgs, nil
}

// pickOracle routes extraction through the message-batch API when the run
// carries enough samples, falling back to direct calls when prefetch fails.
func (p *Pipeline) pickOracle(ctx context.Context, imgs []model.CheckImage, log *zap.Logger) consensus.Oracle {
	if p.batcher == nil || p.cfg.Extract.NoBatch {
		return p.oracle
	}
	total := len(imgs) * p.cfg.Extract.Samples
	if total < p.cfg.Extract.SmallBatchThreshold {
		return p.oracle
	}

	batch := oracle.NewBatch(p.batcher, p.profile, p.cfg.Oracle, p.cfg.Extract.Samples)
	if err := batch.Prefetch(ctx, imgs); err != nil {
		log.Warn("pipeline: batch prefetch failed, using direct calls", zap.Error(err))
		return p.oracle
	}
	log.Info("pipeline: extraction via message batch", zap.Int("samples", total))
	return batch
}

// extract builds a consensus record per image. A check whose every sample
// failed is logged and excluded; it never aborts the run.
func (p *Pipeline) extract(ctx context.Context, builder *consensus.Builder, imgs []model.CheckImage, log *zap.Logger) ([]model.CheckRecord, int) {
	recs := make([]*model.CheckRecord, len(imgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Extract.Concurrency)
	for i := range imgs {
		g.Go(func() error {
			rec, err := builder.Build(gctx, imgs[i])
			if err != nil {
				log.Warn("pipeline: check extraction failed",
					zap.String("source", imgs[i].Name),
					zap.Error(err))
				return nil
			}
			recs[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	records := make([]model.CheckRecord, 0, len(imgs))
	failed := 0
	for _, rec := range recs {
		if rec == nil {
			failed++
			continue
		}
		records = append(records, *rec)
	}
	return records, failed
}

// usd renders grouped dollar amounts for warnings.
var usd = message.NewPrinter(language.English)

func dollars(cents int64) string {
	return usd.Sprintf("$%.2f", float64(cents)/100)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
