package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func checkOnce(t *testing.T, h *Handler) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestCheckAllHealthy(t *testing.T) {
	h := NewHandler(
		PingerFunc(func(context.Context) error { return nil }),
		PingerFunc(func(context.Context) error { return nil }),
	)
	code, body := checkOnce(t, h)
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("code = %d, status = %s", code, body.Status)
	}
}

func TestCheckDatabaseDown(t *testing.T) {
	h := NewHandler(
		PingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		PingerFunc(func(context.Context) error { return nil }),
	)
	code, body := checkOnce(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
	if body.Checks["database"] != "unreachable" || body.Checks["counter_store"] != "ok" {
		t.Fatalf("checks = %v", body.Checks)
	}
}

func TestCheckNilPingersSkipped(t *testing.T) {
	code, body := checkOnce(t, NewHandler(nil, nil))
	if code != http.StatusOK || len(body.Checks) != 0 {
		t.Fatalf("code = %d, checks = %v", code, body.Checks)
	}
}
