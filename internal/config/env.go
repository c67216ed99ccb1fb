package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Service holds the process settings read from the environment.
type Service struct {
	ListenAddr     string
	AllowedOrigins []string

	// Preset names a compiled-in pipeline; ConfigFile, when set, takes
	// precedence and is watched for changes.
	Preset     string
	ConfigFile string

	// Hardware selects the backend: sim, mmio or host.
	Hardware    string
	RPMsgDevice string

	MMIODevice    string
	MMIOSAIBase   uint64
	MMIOSAIStride uint64
	MMIOSAICount  int
	MMIOPLLBase   uint64

	DBEnabled    bool
	DiagInterval time.Duration
	ExecTimeout  time.Duration
}

func FromEnv() Service {
	return Service{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		Preset:         getEnv("PIPELINE_PRESET", "dtmf-sai"),
		ConfigFile:     getEnv("PIPELINE_CONFIG_FILE", ""),
		Hardware:       strings.ToLower(getEnv("HARDWARE", "sim")),
		RPMsgDevice:    getEnv("RPMSG_DEVICE", ""),
		MMIODevice:     getEnv("MMIO_DEVICE", "/dev/mem"),
		MMIOSAIBase:    getEnvUint("MMIO_SAI_BASE", 0x30010000),
		MMIOSAIStride:  getEnvUint("MMIO_SAI_STRIDE", 0x10000),
		MMIOSAICount:   int(getEnvUint("MMIO_SAI_COUNT", 3)),
		MMIOPLLBase:    getEnvUint("MMIO_PLL_BASE", 0x30360000),
		DBEnabled:      strings.EqualFold(getEnv("DB_ENABLED", "false"), "true"),
		DiagInterval:   time.Duration(getEnvUint("DIAG_INTERVAL_MS", 1000)) * time.Millisecond,
		ExecTimeout:    time.Duration(getEnvUint("EXEC_TIMEOUT_MS", 2000)) * time.Millisecond,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getEnvUint accepts decimal or 0x-prefixed values.
func getEnvUint(key string, fallback uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
