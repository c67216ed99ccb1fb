package presets

import (
	"errors"
	"slices"
	"testing"

	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/hardware/sim"
	"rtaudio-pipeline/internal/pipeline"
)

func board(req Requirements) *sim.Board {
	return sim.NewBoard(slices.Max(req.SAIInstances), req.Lines, 3072000)
}

func snapshot(t *testing.T, p *pipeline.Pipeline) *pipeline.State {
	t.Helper()
	done, err := p.Submit(pipeline.Command{Kind: pipeline.Snapshot})
	if err != nil {
		t.Fatalf("submit snapshot: %v", err)
	}
	p.Step()
	res := <-done
	return res.Snapshot
}

func TestPresetsRun(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			cfg, req, err := Get(name, 5)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if cfg.ID != 5 || cfg.Name != name {
				t.Fatalf("got id %d name %q", cfg.ID, cfg.Name)
			}
			p, err := pipeline.Build(cfg, board(req).Set())
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			for i := 0; i < 20; i++ {
				p.Step()
			}
			st := snapshot(t, p)
			for _, e := range st.Elements {
				if e.Stalled {
					t.Errorf("element %d (%s) stalled: %s", e.ID, e.Type, e.LastError)
				}
			}
		})
	}
}

func TestDTMFSAIOutput(t *testing.T) {
	cfg, req, _ := Get("dtmf-sai", 1)
	b := board(req)
	p, err := pipeline.Build(cfg, b.Set())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		p.Step()
	}
	words := b.SAI[1].Drain(0)
	if len(words) != 10*Period*2 {
		t.Fatalf("got %d words, want %d", len(words), 10*Period*2)
	}
	var right int
	for n := Period * 2; n < len(words); n += 2 {
		if words[n+1] != 0 {
			right++
		}
	}
	if right == 0 {
		t.Errorf("no tone on the right channel")
	}
}

func TestPresetsEncode(t *testing.T) {
	for _, name := range Names() {
		cfg, _, _ := Get(name, 2)
		data, err := config.Encode(cfg)
		if err != nil {
			t.Fatalf("%s: Encode failed: %v", name, err)
		}
		back, err := config.Decode(data)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", name, err)
		}
		if back.Name != name || len(back.Elements) != len(cfg.Elements) {
			t.Errorf("%s: decoded %q with %d elements", name, back.Name, len(back.Elements))
		}
	}
}

func TestUnknownPreset(t *testing.T) {
	if _, _, err := Get("nope", 1); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
	if !slices.IsSorted(Names()) || len(Names()) != 3 {
		t.Errorf("Names() = %v", Names())
	}
}

func TestRequire(t *testing.T) {
	_, req, _ := Get("sai-loopback-pll", 1)
	if !slices.Equal(req.SAIInstances, []int{1, 2}) || req.Lines != 1 || !req.Clocks {
		t.Errorf("sai-loopback-pll requires %+v", req)
	}
	_, req, _ = Get("avtp-bridge", 1)
	if !slices.Equal(req.SAIInstances, []int{1}) || req.Clocks {
		t.Errorf("avtp-bridge requires %+v", req)
	}
	if req := Require(pipeline.Config{}); req.SAIInstances != nil || req.Lines != 0 {
		t.Errorf("empty config requires %+v", req)
	}
}
