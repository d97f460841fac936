// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package projectserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.qml":             "import QtQuick 2.0\nRectangle {}\n",
		"components/Tile.qml":  "Item {}\n",
		".git/config":          "[core]\n",
		"components/.Tile.swp": "swap",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

func TestHandlerServesProjectFiles(t *testing.T) {
	handler, err := NewHandler(writeProject(t), nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "main file", method: http.MethodGet, path: "/main.qml", wantStatus: http.StatusOK, wantBody: "Rectangle {}"},
		{name: "nested file", method: http.MethodGet, path: "/components/Tile.qml", wantStatus: http.StatusOK, wantBody: "Item {}"},
		{name: "head", method: http.MethodHead, path: "/main.qml", wantStatus: http.StatusOK},
		{name: "health", method: http.MethodGet, path: HealthPath, wantStatus: http.StatusOK, wantBody: "OK"},
		{name: "missing", method: http.MethodGet, path: "/Missing.qml", wantStatus: http.StatusNotFound},
		{name: "dot directory", method: http.MethodGet, path: "/.git/config", wantStatus: http.StatusNotFound},
		{name: "dot file", method: http.MethodGet, path: "/components/.Tile.swp", wantStatus: http.StatusNotFound},
		{name: "post rejected", method: http.MethodPost, path: "/main.qml", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(test.method, test.path, nil))

			if recorder.Code != test.wantStatus {
				t.Fatalf("status = %d, want %d", recorder.Code, test.wantStatus)
			}
			body, _ := io.ReadAll(recorder.Body)
			if test.wantBody != "" && !strings.Contains(string(body), test.wantBody) {
				t.Errorf("body = %q, want it to contain %q", body, test.wantBody)
			}
		})
	}
}

func TestNewHandlerRejectsBadRoot(t *testing.T) {
	if _, err := NewHandler(filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Error("NewHandler accepted a missing directory")
	}

	file := filepath.Join(t.TempDir(), "main.qml")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := NewHandler(file, nil); err == nil {
		t.Error("NewHandler accepted a regular file as root")
	}
}
