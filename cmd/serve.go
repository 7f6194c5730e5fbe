package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/pipeline"
	"github.com/sells-group/catalog-enrich/internal/store"
)

var servePort int

// enricher is the part of *pipeline.Pipeline the HTTP trigger drives.
type enricher interface {
	Run(ctx context.Context, itemID string, forceRefresh bool, overrides *config.PipelineOverrides) model.EnrichmentOutput
	RunBatch(ctx context.Context, itemIDs []string, overrides *config.PipelineOverrides, onProgress pipeline.ProgressFunc) map[string]model.EnrichmentOutput
}

// reportReader looks up stored reports.
type reportReader interface {
	GetReport(ctx context.Context, runID string) (*model.EnrichmentReport, error)
}

type enrichRequest struct {
	ForceRefresh bool                      `json:"force_refresh"`
	Overrides    *config.PipelineOverrides `json:"overrides,omitempty"`
}

type batchRequest struct {
	ItemIDs   []string                  `json:"item_ids"`
	Overrides *config.PipelineOverrides `json:"overrides,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, env.Pipeline, env.Store, cfg.Pipeline),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
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

// buildRouter wires the trigger routes. Batches run in the background on
// ctx so they outlive the request; single items run inline.
func buildRouter(ctx context.Context, p enricher, reports reportReader, base config.PipelineConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/items/{id}/enrich", func(w http.ResponseWriter, req *http.Request) {
		var body enrichRequest
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if err := validateOverrides(base, body.Overrides); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		out := p.Run(req.Context(), chi.URLParam(req, "id"), body.ForceRefresh, body.Overrides)
		status := http.StatusOK
		if !out.Success {
			status = http.StatusUnprocessableEntity
		}
		respondJSON(w, status, out)
	})

	r.Post("/batch", func(w http.ResponseWriter, req *http.Request) {
		var body batchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.ItemIDs) == 0 {
			respondError(w, http.StatusBadRequest, "item_ids is required")
			return
		}
		if err := validateOverrides(base, body.Overrides); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		go func() {
			results := p.RunBatch(ctx, body.ItemIDs, body.Overrides, logProgress)
			zap.L().Info("http batch complete", zap.Int("items", len(results)))
		}()

		respondJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted",
			"items":  len(body.ItemIDs),
		})
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		report, err := reports.GetReport(req.Context(), chi.URLParam(req, "id"))
		switch {
		case eris.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "run not found")
		case err != nil:
			zap.L().Error("get report failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "report lookup failed")
		default:
			respondJSON(w, http.StatusOK, report)
		}
	})

	return r
}

// validateOverrides rejects overrides that would make the gates meaningless.
func validateOverrides(base config.PipelineConfig, o *config.PipelineOverrides) error {
	if o == nil {
		return nil
	}
	return base.WithOverrides(o).Validate()
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
