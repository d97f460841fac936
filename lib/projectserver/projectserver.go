// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package projectserver serves a QML project directory to the device.
//
// The device loads the application's sources over HTTP from the host's
// callback listener, so the handler built here is what the session
// serves on the port it announces in the launch command. Only GET and
// HEAD are routed. Dot-prefixed path segments (.git, .qmlrun, editor
// swap files) are never served.
package projectserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
)

// HealthPath answers "OK" without touching the filesystem. Devices probe
// it before fetching the main QML file.
const HealthPath = "/.well-known/qmlrun/health"

// NewHandler returns an HTTP handler serving the files under root. root
// must be an existing directory. A nil logger discards request logs.
func NewHandler(root string, logger *slog.Logger) (http.Handler, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory %s is not a directory", root)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := mux.NewRouter()
	router.Use(logRequests(logger))

	router.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet, http.MethodHead)

	files := http.FileServer(http.Dir(root))
	router.PathPrefix("/").Handler(hideDotFiles(files)).Methods(http.MethodGet, http.MethodHead)

	return router, nil
}

// hideDotFiles answers 404 for any path with a dot-prefixed segment.
func hideDotFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, segment := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(segment, ".") {
				http.NotFound(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Debug("project request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"remote", r.RemoteAddr,
			)
		})
	}
}
