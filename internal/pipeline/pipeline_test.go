package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rtaudio-pipeline/internal/element"
	"rtaudio-pipeline/internal/hardware/sim"
	"rtaudio-pipeline/internal/pll"
)

func testConfig() Config {
	return Config{
		ID:         1,
		Name:       "test",
		Period:     4,
		SampleRate: 48000,
		Buffers:    []BufferConfig{{Count: 2}, {Count: 2}},
		Elements: []element.Config{
			{Type: element.TypeSine, Outputs: []int{0}, Sine: &element.SineConfig{Freq: 1000, Amplitude: 0.5}},
			{Type: element.TypeRouting, Inputs: []int{0}, Outputs: []int{1}},
			{Type: element.TypeSAISink, Inputs: []int{1}, SAI: &element.SAIConfig{Lines: []element.SAILine{
				{Instance: 1, Line: 0, Slots: 1, Channels: []element.SAIChannel{{Slot: 0}}},
			}}},
		},
	}
}

func build(t *testing.T, cfg Config) (*Pipeline, *sim.Board) {
	t.Helper()
	board := sim.NewBoard(1, 1, 3072000)
	p, err := Build(cfg, board.Set())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p, board
}

func step(t *testing.T, p *Pipeline, cmd Command) Result {
	t.Helper()
	done, err := p.Submit(cmd)
	if err != nil {
		t.Fatalf("submit %s: %v", cmd.Kind, err)
	}
	p.Step()
	select {
	case res := <-done:
		return res
	default:
		t.Fatalf("command %s not applied by Step", cmd.Kind)
	}
	return Result{}
}

func TestBuildRejects(t *testing.T) {
	board := sim.NewBoard(1, 1, 3072000)
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"two writers", func(c *Config) { c.Elements[1].Outputs = []int{0} }, ErrSharedBuffer},
		{"two readers", func(c *Config) { c.Elements[2].Inputs = []int{0} }, ErrSharedBuffer},
		{"bad count", func(c *Config) { c.Buffers[0].Count = 0 }, ErrBufferConfig},
		{"small storage", func(c *Config) { c.Buffers[0].Storage = make([]uint32, 4) }, ErrBufferConfig},
		{"small buffer", func(c *Config) { c.Buffers[0].Period = 1; c.Buffers[0].Count = 1 }, ErrBufferConfig},
		{"huge buffer", func(c *Config) { c.Buffers[0].Period = 1 << 30; c.Buffers[0].Count = 1 << 30 }, ErrBufferConfig},
		{"oversized buffer", func(c *Config) { c.Buffers[0].Period = 1 << 20; c.Buffers[0].Count = 1 << 20 }, ErrBufferConfig},
		{"element period", func(c *Config) { c.Elements[2].Period = element.MaxPeriod + 1 }, element.ErrConfig},
		{"element config", func(c *Config) { c.Elements[0].Sine.Amplitude = 2 }, element.ErrConfig},
		{"arity", func(c *Config) { c.Elements[0].Inputs = []int{1} }, element.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := Build(cfg, board.Set())
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}

	cfg := testConfig()
	cfg.Elements[1].Outputs = []int{7}
	if _, err := Build(cfg, board.Set()); err == nil {
		t.Errorf("out of range buffer accepted")
	}
	if _, err := Build(testConfig(), nil); err == nil {
		t.Errorf("sai sink built without hardware")
	}
}

func TestStepMovesAudio(t *testing.T) {
	p, board := build(t, testConfig())
	for i := 0; i < 4; i++ {
		p.Step()
	}
	words := board.SAI[1].Drain(0)
	if len(words) != 16 {
		t.Fatalf("transmitted %d words, want 16", len(words))
	}
	var nonzero int
	for _, w := range words[4:] {
		if w != 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		t.Errorf("no audio reached the sink")
	}

	st := step(t, p, Command{Kind: Snapshot}).Snapshot
	if st.Steps != 4 {
		t.Errorf("steps %d", st.Steps)
	}
	for _, e := range st.Elements {
		if e.Stalled || e.Underflows != 0 || e.Overflows != 0 {
			t.Errorf("element %d unhealthy: %+v", e.ID, e)
		}
	}
}

func TestFaultStallsElement(t *testing.T) {
	p, board := build(t, testConfig())
	var faults []Fault
	p.OnFault = func(f Fault) { faults = append(faults, f) }

	p.Step()
	p.Step()
	board.SAI[1].FailTx()
	p.Step()
	p.Step()
	p.Step()

	if len(faults) != 1 || faults[0].Element != 2 || !errors.Is(faults[0].Err, element.ErrFIFO) {
		t.Fatalf("faults %+v", faults)
	}
	st := step(t, p, Command{Kind: Snapshot}).Snapshot
	sink := st.Elements[2]
	if !sink.Stalled || sink.Runs != 3 || sink.LastError == "" {
		t.Fatalf("sink state %+v", sink)
	}
	if st.Elements[0].Runs != 5 {
		t.Errorf("healthy element skipped: %+v", st.Elements[0])
	}

	step(t, p, Command{Kind: ResetElement, Element: 2})
	st = step(t, p, Command{Kind: Snapshot}).Snapshot
	if st.Elements[2].Stalled {
		t.Errorf("element still stalled after reset")
	}
	if tx, _ := board.SAI[1].Enabled(); !tx {
		t.Errorf("sink did not restart")
	}
}

func TestSubmitValidation(t *testing.T) {
	cfg := testConfig()
	cfg.QueueDepth = 1
	p, _ := build(t, cfg)

	tests := []struct {
		cmd    Command
		target error
	}{
		{Command{Kind: ResetElement, Element: 3}, ErrInvalidElement},
		{Command{Kind: ResetElement, Element: -1}, ErrInvalidElement},
		{Command{Kind: Connect, Element: 1, A: 1, B: 0}, ErrInvalidArgument},
		{Command{Kind: Connect, Element: 1, A: 0, B: 4}, ErrInvalidArgument},
		{Command{Kind: Connect, Element: 0, A: 0, B: 0}, ErrInvalidElement},
		{Command{Kind: PLLEnable, Element: 0}, ErrInvalidElement},
		{Command{Kind: PLLSetDomains, Element: 2, A: 0, B: 1}, ErrInvalidElement},
		{Command{Kind: Kind(99)}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		if _, err := p.Submit(tt.cmd); !errors.Is(err, tt.target) {
			t.Errorf("%+v: expected %v, got %v", tt.cmd, tt.target, err)
		}
	}

	if _, err := p.Submit(Command{Kind: Disconnect, Element: 1, A: 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := p.Submit(Command{Kind: Dump}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	p.Step()
	if got := p.slots[1].elem.Routes(); got[0] != element.Disconnected {
		t.Errorf("disconnect not applied: %v", got)
	}
}

func TestExecTimeoutWithdrawsCommand(t *testing.T) {
	p, _ := build(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Exec(ctx, Command{Kind: Disconnect, Element: 1, A: 0}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	p.Step()
	if got := p.slots[1].elem.Routes(); got[0] != 0 {
		t.Errorf("withdrawn disconnect applied: %v", got)
	}

	done, err := p.Submit(Command{Kind: Disconnect, Element: 1, A: 0})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	p.Step()
	if res := <-done; res.Err != nil {
		t.Fatalf("disconnect: %v", res.Err)
	}
	if got := p.slots[1].elem.Routes(); got[0] != element.Disconnected {
		t.Errorf("queued disconnect not applied: %v", got)
	}
}

func TestPLLCommands(t *testing.T) {
	cfg := Config{
		ID:         2,
		Period:     48,
		SampleRate: 48000,
		Elements: []element.Config{
			{Type: element.TypePLL, PLL: &pll.Config{Src: 0, Dst: 1, Decimation: 1}},
		},
	}
	p, board := build(t, cfg)

	for i := 0; i < 5; i++ {
		board.Clocks.Advance(time.Millisecond)
		p.Step()
	}
	if st := p.slots[0].elem.PLLStatus(); st.Enabled || st.Samples != 0 {
		t.Fatalf("disabled loop ran: %+v", st)
	}

	step(t, p, Command{Kind: PLLEnable, Element: 0})
	for i := 0; i < pll.LockingSamples+1; i++ {
		board.Clocks.Advance(time.Millisecond)
		p.Step()
	}
	if st := p.slots[0].elem.PLLStatus(); st.State != "locked" {
		t.Fatalf("loop state %s", st.State)
	}

	if _, err := p.Submit(Command{Kind: PLLSetDomains, Element: 0, A: 4, B: 4}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("equal domains: %v", err)
	}
	step(t, p, Command{Kind: PLLSetDomains, Element: 0, A: 2, B: 5})
	st := p.slots[0].elem.PLLStatus()
	if st.Src != 2 || st.Dst != 5 || st.State == "locked" {
		t.Errorf("after reassignment %+v", st)
	}

	step(t, p, Command{Kind: PLLDisable, Element: 0})
	if p.slots[0].elem.PLLStatus().Enabled {
		t.Errorf("loop still enabled")
	}
}

func TestResetPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Buffers[1].Silence = 4
	p, _ := build(t, cfg)
	if got := p.arena.Buffer(1).Available(); got != 4 {
		t.Fatalf("initial silence %d", got)
	}
	for i := 0; i < 3; i++ {
		p.Step()
	}
	step(t, p, Command{Kind: ResetPipeline})
	st := step(t, p, Command{Kind: Snapshot}).Snapshot
	if st.Elements[0].Runs != 4 {
		t.Errorf("reset dropped run counters: %+v", st.Elements[0])
	}
	if st.Elements[2].Stalled {
		t.Errorf("sink stalled")
	}
}

func TestStartExecStop(t *testing.T) {
	p, _ := build(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- p.Start(ctx, time.Tick(time.Millisecond)) }()

	execCtx, execCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer execCancel()
	res, err := p.Exec(execCtx, Command{Kind: Dump})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	for _, want := range []string{`pipeline 1 "test"`, "sine", "routing", "sai_sink", "period_ns"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("dump missing %q:\n%s", want, res.Text)
		}
	}

	cancel()
	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Errorf("Start returned %v", err)
	}
	if _, err := p.Exec(execCtx, Command{Kind: Dump}); !errors.Is(err, ErrStopped) {
		t.Errorf("exec after stop: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, _ := build(t, testConfig())
	cfg := testConfig()
	cfg.ID = 0
	b, _ := build(t, cfg)
	r.Put(a)
	r.Put(b)

	if list := r.List(); len(list) != 2 || list[0].ID() != 0 || list[1].ID() != 1 {
		t.Fatalf("list order wrong")
	}
	if _, err := r.Get(7); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("missing pipeline: %v", err)
	}
	c, _ := build(t, testConfig())
	if old := r.Put(c); old != a {
		t.Errorf("replace returned %v", old)
	}
	r.Remove(1)
	if _, err := r.Get(1); err == nil {
		t.Errorf("removed pipeline still present")
	}
}
