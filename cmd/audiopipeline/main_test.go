package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rtaudio-pipeline/internal/auth"
	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/presets"
)

func startRunner(t *testing.T) (*runner, *pipeline.Registry) {
	t.Helper()
	cfg, req, err := presets.Get("dtmf-sai", 1)
	if err != nil {
		t.Fatal(err)
	}
	hw, closeHW, err := openHardware(config.Service{Hardware: "sim"}, req, cfg.SampleRate)
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	t.Cleanup(closeHW)

	ctx, cancel := context.WithCancel(context.Background())
	reg := pipeline.NewRegistry()
	r := newRunner(ctx, hw, reg, nil)
	if err := r.start(cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		r.stop()
		cancel()
	})
	return r, reg
}

func TestRunnerReplace(t *testing.T) {
	r, reg := startRunner(t)

	bad, _, _ := presets.Get("dtmf-sai", 2)
	bad.Elements[0].DTMF.Amplitude = 3
	if err := r.start(bad); err == nil {
		t.Fatalf("invalid config accepted")
	}
	if _, err := reg.Get(1); err != nil {
		t.Fatalf("running pipeline dropped after rejected config: %v", err)
	}

	next, _, _ := presets.Get("dtmf-sai", 2)
	if err := r.start(next); err != nil {
		t.Fatalf("start: %v", err)
	}
	list := reg.List()
	if len(list) != 1 || list[0].ID() != 2 {
		t.Fatalf("registry holds %d pipelines", len(list))
	}
}

func TestOpenHardwareUnknown(t *testing.T) {
	if _, _, err := openHardware(config.Service{Hardware: "fpga"}, presets.Requirements{}, 48000); err == nil {
		t.Errorf("unknown backend accepted")
	}
}

func TestAPI(t *testing.T) {
	_, reg := startRunner(t)
	a := &api{reg: reg, timeout: 2 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/pipelines", a.handleList)
	mux.HandleFunc("/api/pipelines/", a.handlePipeline)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Success   bool            `json:"success"`
		Pipelines []pipeline.Info `json:"pipelines"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if !list.Success || len(list.Pipelines) != 1 || list.Pipelines[0].Name != "dtmf-sai" {
		t.Fatalf("list = %+v", list)
	}

	resp, err = http.Get(srv.URL + "/api/pipelines/1/dump")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "dtmf-sai") {
		t.Fatalf("dump %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/api/pipelines/1/state")
	if err != nil {
		t.Fatal(err)
	}
	var st pipeline.State
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.ID != 1 || len(st.Elements) != 4 {
		t.Fatalf("state = %+v", st)
	}

	for path, code := range map[string]int{
		"/api/pipelines/9/dump":   http.StatusNotFound,
		"/api/pipelines/x/dump":   http.StatusBadRequest,
		"/api/pipelines/1/other":  http.StatusNotFound,
		"/api/pipelines/1/faults": http.StatusServiceUnavailable,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != code {
			t.Errorf("%s: status %d, want %d", path, resp.StatusCode, code)
		}
	}
}

func TestAPIAuth(t *testing.T) {
	_, reg := startRunner(t)
	v := auth.NewSecretVerifier("secret", "")
	a := &api{reg: reg, verifier: v, role: controlRole, timeout: time.Second}

	rec := httptest.NewRecorder()
	a.handleList(rec, httptest.NewRequest(http.MethodGet, "/api/pipelines", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d", rec.Code)
	}

	token, _ := v.Sign("ops", []string{"viewer"}, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.handleList(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: status %d", rec.Code)
	}

	token, _ = v.Sign("ops", []string{controlRole}, time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.handleList(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status %d", rec.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://board.local"})
	r := httptest.NewRequest(http.MethodGet, "/ws/control", nil)
	r.Header.Set("Origin", "http://board.local")
	if !check(r) {
		t.Errorf("allowed origin rejected")
	}
	r.Header.Set("Origin", "http://evil")
	if check(r) {
		t.Errorf("foreign origin accepted")
	}
	if !originChecker(nil)(r) {
		t.Errorf("empty list should allow all")
	}
}
