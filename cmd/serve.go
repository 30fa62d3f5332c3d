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

	"github.com/tracewire/tracewire/internal/ledger"
	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/store"
	"github.com/tracewire/tracewire/internal/tracker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initTracker(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Tracker, env.Ledger, env.Store),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(tr *tracker.Tracker, l *ledger.Ledger, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"breakers": tr.Breakers(),
		})
	})

	r.Get("/api/modules", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, model.Catalog())
	})

	r.Post("/api/searches", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			UserID             string   `json:"user_id"`
			CaseID             string   `json:"case_id"`
			Type               string   `json:"type"`
			Value              string   `json:"value"`
			Modules            []string `json:"modules"`
			DisclaimerAccepted bool     `json:"disclaimer_accepted"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		search, err := tr.Submit(req.Context(), tracker.SubmitRequest{
			UserID:             body.UserID,
			CaseID:             body.CaseID,
			Type:               model.SearchType(body.Type),
			Value:              body.Value,
			Modules:            body.Modules,
			DisclaimerAccepted: body.DisclaimerAccepted,
		})
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		// Execution outlives the request; clients poll the search id.
		go func() {
			if _, err := tr.Execute(context.Background(), search.ID); err != nil {
				zap.L().Error("search execution failed",
					zap.String("search_id", search.ID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, search)
	})

	r.Get("/api/searches/{id}", func(w http.ResponseWriter, req *http.Request) {
		result, err := tr.GetResult(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/users/{id}/credits", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "id")
		balance, err := l.Balance(req.Context(), userID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "credits": balance})
	})

	r.Post("/api/users/{id}/credits", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Amount      int64  `json:"amount"`
			Actor       string `json:"actor"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount must be positive")
			return
		}

		txn, err := l.Credit(req.Context(), chi.URLParam(req, "id"), body.Amount, body.Actor, body.Description)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	})

	r.Get("/api/users/{id}/transactions", func(w http.ResponseWriter, req *http.Request) {
		txns, err := l.History(req.Context(), chi.URLParam(req, "id"), 50)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, txns)
	})

	r.Get("/api/users/{id}/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := tr.UserStats(req.Context(), chi.URLParam(req, "id"), 1000)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Get("/api/cases/{id}/searches", func(w http.ResponseWriter, req *http.Request) {
		searches, err := st.ListSearchesByCase(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, searches)
	})

	return r
}

func statusFor(err error) int {
	switch {
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, ledger.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case eris.Is(err, tracker.ErrDisclaimerRequired),
		eris.Is(err, tracker.ErrUnknownModule),
		eris.Is(err, tracker.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
