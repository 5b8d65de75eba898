package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mplata/loantrack/pkg/config"
	"github.com/mplata/loantrack/pkg/logger"
	"github.com/mplata/loantrack/pkg/metrics"
	"github.com/mplata/loantrack/pkg/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, log)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/").Subrouter()
	api.Use(metrics.Instrument)
	server.registerRoutes(api)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	log.Info("server starting",
		zap.String("addr", cfg.Addr),
		zap.String("db", cfg.DatabasePath))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
