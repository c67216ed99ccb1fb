package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/control"
	"rtaudio-pipeline/internal/pipeline"
)

func TestEncodePreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.bin")
	if err := encodePreset("avtp-bridge", 3, path); err != nil {
		t.Fatalf("encodePreset: %v", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ID != 3 || cfg.Name != "avtp-bridge" {
		t.Errorf("got id %d name %q", cfg.ID, cfg.Name)
	}
	if err := encodePreset("nope", 0, path); err == nil {
		t.Errorf("unknown preset accepted")
	}
}

func TestPrintResponse(t *testing.T) {
	var buf bytes.Buffer
	if err := printResponse(&buf, control.Response{Type: control.CmdDump, Status: control.StatusBusy}); err == nil {
		t.Errorf("busy status not reported as error")
	}

	payload, _ := json.Marshal([]pipeline.Info{{ID: 1, Name: "x", Elements: []pipeline.ElementInfo{{ID: 0, Type: "sine"}}}})
	buf.Reset()
	if err := printResponse(&buf, control.Response{Type: control.CmdPipelineList, Payload: payload}); err != nil {
		t.Fatalf("printResponse: %v", err)
	}
	if !strings.Contains(buf.String(), "sine") {
		t.Errorf("list output %q", buf.String())
	}

	buf.Reset()
	printResponse(&buf, control.Response{Type: control.CmdPLLEnable})
	if strings.TrimSpace(buf.String()) != "success" {
		t.Errorf("empty payload output %q", buf.String())
	}
}

func TestCommandList(t *testing.T) {
	names := commandList()
	if len(names) != 9 || names[0] != "pipeline-reset" || names[8] != "list" {
		t.Errorf("commandList = %v", names)
	}
}
