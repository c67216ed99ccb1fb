package storage

import (
	"context"
	"testing"
	"time"

	"rtaudio-pipeline/internal/pipeline"
)

func TestSafeObjectKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"snapshots", "1-dtmf sai", "x.json"}, "snapshots/1-dtmf_sai/x.json"},
		{[]string{"/a/", "", "b\\c"}, "a/b/c"},
		{[]string{"", "/"}, ""},
	}
	for _, tt := range tests {
		if got := SafeObjectKey(tt.parts...); got != tt.want {
			t.Errorf("SafeObjectKey(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestSnapshotKey(t *testing.T) {
	st := pipeline.State{
		ID:   3,
		Name: "sai loopback",
		Time: time.Date(2024, 5, 1, 12, 30, 0, 250*int(time.Millisecond), time.UTC),
	}
	want := "snapshots/3-sai_loopback/20240501T123000.250Z.json"
	if got := SnapshotKey("snapshots", st); got != want {
		t.Errorf("SnapshotKey = %q, want %q", got, want)
	}
	st.Name = ""
	if got := SnapshotKey("", st); got != "3-unnamed/20240501T123000.250Z.json" {
		t.Errorf("SnapshotKey without name = %q", got)
	}
}

func TestDisabled(t *testing.T) {
	t.Setenv("MINIO_ENABLED", "")
	m, err := NewMinioFromEnv()
	if err != nil {
		t.Fatalf("NewMinioFromEnv: %v", err)
	}
	if m.Enabled() {
		t.Fatalf("client enabled without MINIO_ENABLED")
	}
	if _, err := m.ArchiveSnapshot(context.Background(), pipeline.State{}); err == nil {
		t.Errorf("ArchiveSnapshot on disabled client succeeded")
	}
	if err := m.EnsureBucket(context.Background()); err != nil {
		t.Errorf("EnsureBucket on disabled client: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	t.Setenv("MINIO_ENABLED", "true")
	t.Setenv("MINIO_ENDPOINT", "")
	if _, err := NewMinioFromEnv(); err == nil {
		t.Errorf("expected error for missing endpoint")
	}
}
