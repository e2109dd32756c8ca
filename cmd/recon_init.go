package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/consensus"
	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/invoice"
	"github.com/sells-group/check-recon/internal/oracle"
	"github.com/sells-group/check-recon/internal/pipeline"
	"github.com/sells-group/check-recon/internal/sink"
	"github.com/sells-group/check-recon/internal/store"
	anthropicpkg "github.com/sells-group/check-recon/pkg/anthropic"
	"github.com/sells-group/check-recon/pkg/knack"
	"github.com/sells-group/check-recon/pkg/notion"
	sfpkg "github.com/sells-group/check-recon/pkg/salesforce"
)

// reconEnv holds the initialized store, clients, and pipeline shared by
// the reconcile and serve commands.
type reconEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (re *reconEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// initRecon sets up the store, oracle, invoice source, and sinks, then
// builds the Pipeline. Callers should defer env.Close().
func initRecon(ctx context.Context, mode string, dryRun bool) (*reconEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	profile, err := initProfile()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	o, batcher, err := initOracle(profile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// The salesforce session serves both the invoice source and the
	// mark-paid sink, so it is opened once here.
	var sf sfpkg.Client
	if cfg.Invoice.Provider == invoice.ProviderSalesforce {
		sf, err = initSalesforce()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	source, err := invoice.NewSource(cfg.Invoice, sf)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build invoice source")
	}

	p, err := pipeline.New(cfg, o, batcher, source, initSinks(st, sf, dryRun), st, profile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &reconEnv{Store: st, Pipeline: p}, nil
}

func initProfile() (fields.Profile, error) {
	if cfg.FieldsProfile == "" {
		return fields.Default(), nil
	}
	profile, err := fields.Load(cfg.FieldsProfile)
	if err != nil {
		return fields.Profile{}, eris.Wrap(err, "load fields profile")
	}
	zap.L().Info("fields profile loaded",
		zap.String("path", cfg.FieldsProfile),
		zap.Int("fields", len(profile.Fields)),
	)
	return profile, nil
}

// initOracle builds the consensus oracle plus the message-batch client used
// for large scan batches. Ollama runs have no batch path.
func initOracle(profile fields.Profile) (consensus.Oracle, anthropicpkg.Client, error) {
	o, err := oracle.New(cfg.Oracle, profile)
	if err != nil {
		return nil, nil, eris.Wrap(err, "build oracle")
	}

	var batcher anthropicpkg.Client
	if cfg.Oracle.Provider == "" || cfg.Oracle.Provider == oracle.ProviderAnthropic {
		batcher = anthropicpkg.NewClient(cfg.Oracle.APIKey)
	}
	return o, batcher, nil
}

// initSinks assembles the fan-out list. The ledger sink always runs and the
// xlsx report is a local artifact, so both survive dry runs; the mark-paid
// and notion sinks write to external systems and are skipped.
func initSinks(st store.Store, sf sfpkg.Client, dryRun bool) sink.ResultSink {
	sinks := sink.Multi{sink.NewStoreSink(st)}

	if dryRun {
		zap.L().Info("dry run, external sinks disabled")
	} else {
		switch cfg.Invoice.Provider {
		case "", invoice.ProviderKnack:
			if cfg.Sinks.Knack.Enabled {
				kc := knack.NewClient(cfg.Invoice.Knack.AppID, cfg.Invoice.Knack.APIKey, knackSinkOpts()...)
				sinks = append(sinks, sink.NewKnackSink(kc, cfg.Invoice.Knack))
			}
		case invoice.ProviderSalesforce:
			if cfg.Sinks.Salesforce.Enabled && sf != nil {
				sinks = append(sinks, sink.NewSalesforceSink(sf, cfg.Invoice.Salesforce.BillingObject))
			}
		}

		if cfg.Sinks.Notion.Enabled {
			sinks = append(sinks, sink.NewNotionSink(notion.NewClient(cfg.Sinks.Notion.Token), cfg.Sinks.Notion.DatabaseID))
		}
	}

	if cfg.Sinks.XLSX.Enabled {
		sinks = append(sinks, sink.NewXLSXSink(cfg.Sinks.XLSX.Dir))
	}

	return sinks
}

func knackSinkOpts() []knack.Option {
	var opts []knack.Option
	if cfg.Invoice.Knack.BaseURL != "" {
		opts = append(opts, knack.WithBaseURL(cfg.Invoice.Knack.BaseURL))
	}
	if cfg.Invoice.Knack.RPS > 0 {
		opts = append(opts, knack.WithRateLimit(cfg.Invoice.Knack.RPS))
	}
	return opts
}
