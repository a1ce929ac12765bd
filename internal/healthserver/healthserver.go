// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package healthserver runs the ambient health/metrics endpoints this
// module exposes regardless of whatever HTTP surface a host process
// adds on top of the pricing core.
//
// Adapted from libaf/healthserver/healthserver.go: same three routes and
// goroutine-based non-blocking start, moved onto a dedicated ServeMux
// instead of http.DefaultServeMux so starting more than one instance
// (as tests do) never panics on a duplicate route registration.
package healthserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is a running health/metrics listener.
type Server struct {
	http *http.Server
}

// Start starts a health/metrics server on the given port:
//   - /healthz - liveness probe, always 200 while the process is alive.
//   - /readyz  - readiness probe, delegates to readyChecker.
//   - /metrics - Prometheus metrics endpoint.
//
// The server runs on a background goroutine and does not block.
func Start(logger *zap.Logger, port int, readyChecker func() bool) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if readyChecker != nil && readyChecker() {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				logger.Error("failed to write ready response", zap.Error(err))
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			logger.Error("failed to write not ready response", zap.Error(err))
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 40 * time.Second,
	}

	go func() {
		logger.Info("starting health/metrics server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	return &Server{http: srv}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
