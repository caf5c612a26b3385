/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tomoncle/datajpa/config"
	"github.com/tomoncle/datajpa/controller"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/repository"
	"github.com/tomoncle/datajpa/spy"
	"github.com/tomoncle/datajpa/types"
	"github.com/tomoncle/datajpa/utils"
)

const (
	seedCount       = 100
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "start the member HTTP API (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// application is everything serve wires together before listening.
type application struct {
	logger  *logrus.Logger
	members repository.MemberRepository
	router  *chi.Mux
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	logger := utils.NewLogger("DATAJPA")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := spy.NewMetrics(cfg.SQLLog.MetricsNamespace)
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("can't register SQL metrics: %w", err)
	}

	models := database.NewModelRegistry()
	entity.Register(models)
	managerOpts := append(cfg.ManagerOptions(logger, metrics), database.WithModelRegistry(models))
	db, err := database.InitDB(ctx, cfg.ConfigLoader(), managerOpts...)
	if err != nil {
		return nil, err
	}

	members := repository.NewMemberRepository(db)
	if cfg.Seed {
		if err := seedMembers(ctx, members, seedCount); err != nil {
			_ = database.CloseDB()
			return nil, fmt.Errorf("can't seed members: %w", err)
		}
	}

	defaultSort := types.Unsorted
	if cfg.HTTP.DefaultSort != "" {
		order, err := types.ParseOrder(cfg.HTTP.DefaultSort)
		if err != nil {
			_ = database.CloseDB()
			return nil, fmt.Errorf("http.defaultSort: %w", err)
		}
		defaultSort = types.Sort{order}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)
	if len(cfg.HTTP.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	controller.NewMemberController(members,
		controller.WithDefaultPageSize(cfg.HTTP.DefaultPageSize),
		controller.WithDefaultSort(defaultSort),
		controller.WithLogger(logger),
	).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.InstrumentMetricHandler(registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.Get("/health", healthHandler)

	return &application{logger: logger, members: members, router: router}, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.CloseDB() }()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		app.logger.Infof("listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	app.logger.Info("Terminating...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedMembers stores user1..userN with age i in one transaction.
func seedMembers(ctx context.Context, members repository.MemberRepository, n int) error {
	batch := make([]*entity.Member, 0, n)
	for i := 1; i <= n; i++ {
		batch = append(batch, entity.NewMember(fmt.Sprintf("user%d", i), i, nil))
	}
	return members.SaveAll(ctx, batch...)
}

func healthHandler(rw http.ResponseWriter, req *http.Request) {
	status := database.GetHealthStatus(req.Context())
	rw.Header().Set("content-type", "application/json")
	if !status.Healthy {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(rw).Encode(status)
}
