package database

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_NAME", "")
	cfg := ConfigFromEnv()
	dsn := cfg.DSN()
	for _, want := range []string{"host=db.local", "dbname=rtaudio", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestInputValidation(t *testing.T) {
	if err := InsertPLLSample(PLLSampleInput{}); err == nil {
		t.Errorf("pll sample without state accepted")
	}
	if _, err := InsertFault(FaultInput{ElementType: "sai_sink"}); err == nil {
		t.Errorf("fault without message accepted")
	}
	if err := InsertSnapshot(SnapshotInput{Bucket: "b"}); err == nil {
		t.Errorf("snapshot without key accepted")
	}
}

// TestRoundTrip runs against a real server when DB_TEST=true.
func TestRoundTrip(t *testing.T) {
	if os.Getenv("DB_TEST") != "true" {
		t.Skip("DB_TEST not set")
	}
	if err := Init(ConfigFromEnv()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		Close()
		DB = nil
	}()

	pipelineID := int(time.Now().Unix() % 100000)
	if err := InsertPLLSample(PLLSampleInput{PipelineID: pipelineID, State: "locked", PPB: 120}); err != nil {
		t.Fatalf("InsertPLLSample failed: %v", err)
	}
	id, err := InsertFault(FaultInput{PipelineID: pipelineID, ElementID: 2, ElementType: "sai_sink", Message: "tx underrun"})
	if err != nil {
		t.Fatalf("InsertFault failed: %v", err)
	}
	faults, err := RecentFaults(pipelineID, 10)
	if err != nil {
		t.Fatalf("RecentFaults failed: %v", err)
	}
	if len(faults) == 0 || faults[0].ID != id {
		t.Errorf("faults %+v", faults)
	}
}
