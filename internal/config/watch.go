package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"rtaudio-pipeline/internal/pipeline"
)

// LoadFile reads and decodes a binary pipeline description.
func LoadFile(path string) (pipeline.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg, err := Decode(data)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteFile encodes cfg and replaces path atomically.
func WriteFile(path string, cfg pipeline.Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pipeline-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

const settleDelay = 100 * time.Millisecond

// Watcher reloads a pipeline description when its file changes. The
// directory is watched so that editors replacing the file by rename are
// seen too.
type Watcher struct {
	path string
	w    *fsnotify.Watcher
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, w: w}, nil
}

// Run delivers every successfully decoded version of the file to onChange
// until ctx is done. Bursts of events are coalesced; files that fail to
// decode are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(pipeline.Config)) error {
	defer w.w.Close()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(settleDelay)

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[config] watch %s: %v", w.path, err)

		case <-settle:
			settle = nil
			cfg, err := LoadFile(w.path)
			if err != nil {
				log.Printf("[config] reload skipped: %v", err)
				continue
			}
			log.Printf("[config] %s changed, pipeline %d (%s)", w.path, cfg.ID, cfg.Name)
			onChange(cfg)
		}
	}
}
