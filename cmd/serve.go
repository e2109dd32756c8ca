package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
	"github.com/sells-group/check-recon/internal/pipeline"
	"github.com/sells-group/check-recon/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRecon(ctx, "serve", false)
		if err != nil {
			return err
		}
		defer env.Close()

		// Webhook runs execute against the server's lifetime context so
		// an in-flight run survives its originating request.
		launch := func(runID string, opts pipeline.Options) {
			go func() {
				if _, err := env.Pipeline.Execute(ctx, runID, opts); err != nil {
					zap.L().Error("serve: webhook run failed",
						zap.String("run_id", runID),
						zap.Error(err),
					)
				}
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		hasDefaultIntake := cfg.Intake.Dir != "" || cfg.Intake.FTPURL != ""
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Store, launch, cfg.Server.CORSOrigins, hasDefaultIntake),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// launchFunc starts a reconciliation run for an already-created ledger
// entry, asynchronously.
type launchFunc func(runID string, opts pipeline.Options)

// webhookRequest carries the per-run options accepted by the reconcile
// webhook. Empty intake fields fall back to the configured source.
type webhookRequest struct {
	ImagesDir     string `json:"images_dir"`
	FTPURL        string `json:"ftp_url"`
	ExpectedTotal string `json:"expected_total"`
}

// newRouter builds the HTTP surface: health, the reconcile webhook, and
// read-only ledger queries.
func newRouter(st store.Store, launch launchFunc, origins []string, hasDefaultIntake bool) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/reconcile", func(w http.ResponseWriter, req *http.Request) {
		var body webhookRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if body.ImagesDir == "" && body.FTPURL == "" && !hasDefaultIntake {
			http.Error(w, `{"error":"images_dir or ftp_url is required"}`, http.StatusBadRequest)
			return
		}

		opts := pipeline.Options{Dir: body.ImagesDir, FTPURL: body.FTPURL}
		if body.ExpectedTotal != "" {
			cents, err := normalize.Amount(body.ExpectedTotal)
			if err != nil {
				http.Error(w, `{"error":"invalid expected_total"}`, http.StatusBadRequest)
				return
			}
			opts.ExpectedTotalCents = cents
		}

		run, err := st.CreateRun(req.Context())
		if err != nil {
			zap.L().Error("serve: create run failed", zap.Error(err))
			http.Error(w, `{"error":"create run failed"}`, http.StatusInternalServerError)
			return
		}

		launch(run.ID, opts)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": run.ID,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status: model.RunStatus(q.Get("status")),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			zap.L().Error("serve: list runs failed", zap.Error(err))
			http.Error(w, `{"error":"list runs failed"}`, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		run, err := st.GetRun(req.Context(), id)
		if eris.Is(err, store.ErrRunNotFound) {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			zap.L().Error("serve: get run failed", zap.Error(err))
			http.Error(w, `{"error":"get run failed"}`, http.StatusInternalServerError)
			return
		}
		results, err := st.ListResults(req.Context(), id)
		if err != nil {
			zap.L().Error("serve: list results failed", zap.Error(err))
			http.Error(w, `{"error":"list results failed"}`, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, runDetail{Run: *run, Results: results})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
