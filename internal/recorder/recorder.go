// Package recorder periodically snapshots running pipelines and fans the
// result out to monitor subscribers, the diagnostics database and the
// snapshot archive.
package recorder

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"rtaudio-pipeline/internal/database"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/storage"
)

type Publisher interface {
	Publish(st pipeline.State)
}

type Store interface {
	InsertPLLSample(database.PLLSampleInput) error
	InsertFault(database.FaultInput) (int64, error)
	InsertSnapshot(database.SnapshotInput) error
}

type Archiver interface {
	ArchiveSnapshot(ctx context.Context, st pipeline.State) (storage.Archived, error)
}

// DBStore writes through the global database connection.
type DBStore struct{}

func (DBStore) InsertPLLSample(in database.PLLSampleInput) error  { return database.InsertPLLSample(in) }
func (DBStore) InsertFault(in database.FaultInput) (int64, error) { return database.InsertFault(in) }
func (DBStore) InsertSnapshot(in database.SnapshotInput) error    { return database.InsertSnapshot(in) }

type Config struct {
	Interval time.Duration
	// ArchiveEvery uploads one snapshot out of every ArchiveEvery taken.
	// Zero disables the archive.
	ArchiveEvery int
	// Timeout bounds each snapshot request.
	Timeout time.Duration
	// FaultQueue is the number of faults buffered between the scheduler
	// and the database writer.
	FaultQueue int
}

// Recorder collects snapshots of every pipeline in a registry. Publisher,
// Store and Archiver are optional.
type Recorder struct {
	cfg     Config
	reg     *pipeline.Registry
	pub     Publisher
	store   Store
	archive Archiver

	faults  chan pipeline.Fault
	dropped atomic.Uint64
	taken   uint64
}

func New(cfg Config, reg *pipeline.Registry, pub Publisher, store Store, archive Archiver) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.FaultQueue <= 0 {
		cfg.FaultQueue = 64
	}
	return &Recorder{
		cfg:     cfg,
		reg:     reg,
		pub:     pub,
		store:   store,
		archive: archive,
		faults:  make(chan pipeline.Fault, cfg.FaultQueue),
	}
}

// OnFault queues a fault for the database writer. It never blocks, so it
// can be installed as a pipeline's OnFault hook.
func (r *Recorder) OnFault(f pipeline.Fault) {
	select {
	case r.faults <- f:
	default:
		r.dropped.Add(1)
	}
}

// Dropped is the number of faults discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run collects until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-r.faults:
			r.recordFault(f)
		case <-t.C:
			r.Collect(ctx)
		}
	}
}

// Collect takes one snapshot of every registered pipeline.
func (r *Recorder) Collect(ctx context.Context) {
	r.taken++
	archive := r.archive != nil && r.cfg.ArchiveEvery > 0 && r.taken%uint64(r.cfg.ArchiveEvery) == 0

	for _, p := range r.reg.List() {
		sctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		res, err := p.Exec(sctx, pipeline.Command{Kind: pipeline.Snapshot})
		cancel()
		if err != nil {
			log.Printf("[recorder] pipeline %d snapshot: %v", p.ID(), err)
			continue
		}
		st := *res.Snapshot

		if r.pub != nil {
			r.pub.Publish(st)
		}
		if r.store != nil {
			r.recordPLL(st)
		}
		if archive {
			r.archiveSnapshot(ctx, st)
		}
	}
}

func (r *Recorder) recordPLL(st pipeline.State) {
	for _, e := range st.Elements {
		if e.PLL == nil || !e.PLL.Enabled {
			continue
		}
		err := r.store.InsertPLLSample(database.PLLSampleInput{
			PipelineID:  st.ID,
			ElementID:   e.ID,
			Src:         e.PLL.Src,
			Dst:         e.PLL.Dst,
			State:       e.PLL.State,
			PPB:         e.PLL.PPB,
			ErrMean:     e.PLL.Err.Mean,
			ErrVariance: e.PLL.Err.Variance,
			PPBMin:      e.PLL.PPBStats.Min,
			PPBMax:      e.PLL.PPBStats.Max,
			HasWindow:   e.PLL.Err.Windows > 0,
		})
		if err != nil {
			log.Printf("[recorder] pipeline %d pll %d: %v", st.ID, e.ID, err)
		}
	}
}

func (r *Recorder) recordFault(f pipeline.Fault) {
	log.Printf("[recorder] pipeline %d element %d (%s) fault: %v", f.Pipeline, f.Element, f.Type, f.Err)
	if r.store == nil {
		return
	}
	msg := "unknown"
	if f.Err != nil {
		msg = f.Err.Error()
	}
	_, err := r.store.InsertFault(database.FaultInput{
		PipelineID:  f.Pipeline,
		ElementID:   f.Element,
		ElementType: f.Type,
		Message:     msg,
		OccurredAt:  f.Time,
	})
	if err != nil {
		log.Printf("[recorder] store fault: %v", err)
	}
}

func (r *Recorder) archiveSnapshot(ctx context.Context, st pipeline.State) {
	a, err := r.archive.ArchiveSnapshot(ctx, st)
	if err != nil {
		log.Printf("[recorder] pipeline %d archive: %v", st.ID, err)
		return
	}
	if r.store == nil {
		return
	}
	err = r.store.InsertSnapshot(database.SnapshotInput{
		PipelineID: st.ID,
		Bucket:     a.Bucket,
		ObjectKey:  a.Key,
		ETag:       a.ETag,
		Size:       a.Size,
	})
	if err != nil {
		log.Printf("[recorder] pipeline %d archive index: %v", st.ID, err)
	}
}
