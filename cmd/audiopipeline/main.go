package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtaudio-pipeline/internal/auth"
	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/control"
	"rtaudio-pipeline/internal/database"
	"rtaudio-pipeline/internal/monitor"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/presets"
	"rtaudio-pipeline/internal/recorder"
	"rtaudio-pipeline/internal/storage"
)

const controlRole = "audio-control"

// loadPipeline returns the configuration file when one is set, the preset
// otherwise.
func loadPipeline(svc config.Service) (pipeline.Config, error) {
	if svc.ConfigFile != "" {
		return config.LoadFile(svc.ConfigFile)
	}
	cfg, _, err := presets.Get(svc.Preset, 0)
	return cfg, err
}

func main() {
	svc := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadPipeline(svc)
	if err != nil {
		log.Fatalf("Failed to load pipeline: %v", err)
	}

	hw, closeHW, err := openHardware(svc, presets.Require(cfg), cfg.SampleRate)
	if err != nil {
		log.Fatalf("Failed to open hardware: %v", err)
	}
	defer closeHW()

	var store recorder.Store
	if svc.DBEnabled {
		log.Println("Initializing database connection...")
		if err := database.Init(database.ConfigFromEnv()); err != nil {
			log.Printf("Diagnostics database disabled: %v", err)
		} else {
			defer database.Close()
			store = recorder.DBStore{}
		}
	}

	var archive recorder.Archiver
	minioClient, err := storage.NewMinioFromEnv()
	if err != nil {
		log.Printf("MinIO disabled: %v", err)
	} else if minioClient.Enabled() {
		if err := minioClient.EnsureBucket(ctx); err != nil {
			log.Printf("MinIO disabled: %v", err)
		} else {
			archive = minioClient
			log.Printf("Archiving snapshots to bucket %s", minioClient.Bucket())
		}
	}

	verifier, err := auth.FromEnv()
	if err != nil {
		log.Printf("Control auth disabled: %v", err)
		verifier = nil
	}

	checkOrigin := originChecker(svc.AllowedOrigins)
	reg := pipeline.NewRegistry()
	hub := monitor.NewHub(checkOrigin)

	rec := recorder.New(recorder.Config{
		Interval:     svc.DiagInterval,
		ArchiveEvery: 60,
		Timeout:      svc.ExecTimeout,
	}, reg, hub, store, archive)
	go rec.Run(ctx)

	run := newRunner(ctx, hw, reg, rec.OnFault)
	if err := run.start(cfg); err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer run.stop()

	if svc.ConfigFile != "" {
		w, err := config.NewWatcher(svc.ConfigFile)
		if err != nil {
			log.Printf("Config reload disabled: %v", err)
		} else {
			go w.Run(ctx, func(next pipeline.Config) {
				if err := run.start(next); err != nil {
					log.Printf("Keeping running pipeline, new config rejected: %v", err)
				}
			})
		}
	}

	handler := control.NewHandler(reg, svc.ExecTimeout)
	if svc.RPMsgDevice != "" {
		t, err := control.OpenRPMsg(svc.RPMsgDevice, handler)
		if err != nil {
			log.Printf("RPMsg control disabled: %v", err)
		} else {
			go func() {
				if err := t.Serve(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[control] rpmsg stopped: %v", err)
				}
			}()
			log.Printf("RPMsg control on %s", svc.RPMsgDevice)
		}
	}

	a := &api{reg: reg, verifier: verifier, role: controlRole, timeout: svc.ExecTimeout}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/pipelines", a.handleList)
	mux.HandleFunc("/api/pipelines/", a.handlePipeline)
	mux.Handle("/ws/control", control.NewServer(handler, verifier, controlRole, checkOrigin))
	mux.Handle("/ws/monitor/", hub)

	server := &http.Server{Addr: svc.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on %s", svc.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}
