/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	ghcacheproxy "github.com/sigcache/ghcacheproxy"
	"github.com/sigcache/ghcacheproxy/internal/auth"
	"github.com/sigcache/ghcacheproxy/internal/cache"
	"github.com/sigcache/ghcacheproxy/internal/config"
	"github.com/sigcache/ghcacheproxy/internal/credentials"
	"github.com/sigcache/ghcacheproxy/internal/forward"
	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
	"github.com/sigcache/ghcacheproxy/internal/telemetry"
)

type options struct {
	port           int
	metricsPort    int
	logLevel       string
	requestTimeout time.Duration
}

func flagOptions() *options {
	o := &options{}
	flag.IntVar(&o.port, "port", 8888, "Port to listen on.")
	flag.IntVar(&o.metricsPort, "metrics-port", 9090, "Port to serve /metrics on.")
	flag.StringVar(&o.logLevel, "log-level", "info", fmt.Sprintf("Log level is one of %v.", logrus.AllLevels))
	flag.DurationVar(&o.requestTimeout, "request-timeout", 30*time.Second, "Per-request timeout applied to the whole proxy handler.")
	return o
}

func main() {
	o := flagOptions()
	flag.Parse()

	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level.")
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration.")
	}

	clients, err := config.LoadClientRegistry(cfg.ClientRegistryPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load client registry.")
	}
	registry, err := auth.NewRegistry(clients)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid client registry.")
	}

	respCache, err := cache.NewFromURL(cfg.CacheBackendURL, 0, cfg.CacheTTL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to construct response cache.")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rateLimits := ratelimit.New(cfg.CredsCacheMaxSize, cfg.CredsCacheTTLPadding)
	tokens := credentials.NewAppTokenCache(cfg.GitHubAPIURL, httpClient, cfg.CredsCacheMaxSize, cfg.CredsCacheTTLPadding)
	sink := telemetry.NewPrometheus()
	fwd := forward.New(cfg.GitHubAPIURL, httpClient, cfg.Pool, rateLimits, tokens, sink)

	core := ghcacheproxy.New(respCache, fwd, sink)
	handler := ghcacheproxy.NewHandler(core, auth.NewAuthorizer(registry))

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if core.Health(r.Context()) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(o.port),
		Handler: http.TimeoutHandler(mux, o.requestTimeout, "ghcacheproxy timed out"),
	}

	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(o.metricsPort),
		Handler: promhttp.Handler(),
	}

	go func() {
		logrus.WithField("port", o.metricsPort).Info("Serving metrics.")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("Metrics server stopped unexpectedly.")
		}
	}()

	go func() {
		logrus.WithField("port", o.port).Info("Serving requests.")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Server stopped unexpectedly.")
		}
	}()

	waitForShutdown(server, metricsServer)
}

func waitForShutdown(servers ...*http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("Shutting down.")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Error during graceful shutdown.")
		}
	}
}
