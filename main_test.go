package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/database"
	"github.com/labstack/echo/v4"
)

func setupTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	injectGlobals(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := config.LoadServerConfig()
	cfg.DatabaseType = "sqlite"
	cfg.DatabaseDbname = filepath.Join(t.TempDir(), "pagepack_test.sqlite")
	cfg.MaxUploadMB = 1

	db, err := database.NewRepository(cfg)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e, _ := newServer(cfg, db, nil)
	return e
}

func TestNotFoundHandling(t *testing.T) {
	e := setupTestServer(t)

	t.Run("API paths get JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Expected a JSON body: %v", err)
		}
		if body["path"] != "/api/does-not-exist" {
			t.Errorf("Expected the path to be echoed, got %q", body["path"])
		}
	})

	t.Run("Malformed job id is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-ulid", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for a malformed job id, got %d", rec.Code)
		}
	})
}

func TestConfigJS(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/config.js", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("Expected javascript content type, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `"startNumber":1001`) {
		t.Errorf("Expected the default start number in config.js, got %s", rec.Body.String())
	}
}

func TestStylesheetIsEmbedded(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webapp/webapp.css", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ".batch-form") {
		t.Error("Expected the batch form styles")
	}
}

func TestUploadLimit(t *testing.T) {
	e := setupTestServer(t)

	body := bytes.Repeat([]byte("x"), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/api/batch", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for an oversized upload, got %d", rec.Code)
	}
}

func TestAboutWithoutRenderer(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/about", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var about map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &about); err != nil {
		t.Fatalf("Failed to parse about: %v", err)
	}
	if about["renderer"] != "none" {
		t.Errorf("Expected renderer none, got %v", about["renderer"])
	}
}

func TestPortHelpers(t *testing.T) {
	if got := nextPort("8000"); got != "8001" {
		t.Errorf("nextPort(8000) = %s", got)
	}
	if !isAddressInUse(errors.New("listen tcp :8000: bind: address already in use")) {
		t.Error("Expected address in use to be detected")
	}
	if isAddressInUse(nil) || isAddressInUse(errors.New("permission denied")) {
		t.Error("Unexpected address in use match")
	}
}
