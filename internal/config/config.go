package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deskwatch/internal/itsm"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	ITSM       itsm.Config
	ListenAddr string
	CORSOrigins []string

	DataPath   string
	LogDir     string
	RangesFile string

	CacheBaseTTL time.Duration
	WorkerLimit  int

	// Technician IDs that always start with a generous page range, even
	// before any count has been observed for them.
	HighVolumeTechnicians []string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try the executable's directory first (matches how the binary is deployed).
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to the current working directory (development/go run).
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths.
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := filepath.Join(dataPath, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	timeoutSecs, _ := strconv.Atoi(getEnv("ITSM_REQUEST_TIMEOUT_SECONDS", "30"))
	pageSize, _ := strconv.Atoi(getEnv("ITSM_PAGE_SIZE", "500"))
	maxPages, _ := strconv.Atoi(getEnv("ITSM_MAX_PAGES", "50"))
	retries, _ := strconv.Atoi(getEnv("ITSM_MAX_RETRIES", "3"))
	cacheTTLSecs, _ := strconv.Atoi(getEnv("CACHE_BASE_TTL_SECONDS", "300"))
	workerLimit, _ := strconv.Atoi(getEnv("WORKER_LIMIT", "5"))
	techProfile, _ := strconv.Atoi(getEnv("ITSM_TECHNICIAN_PROFILE_ID", "6"))

	cfg := &AppConfig{
		ITSM: itsm.Config{
			BaseURL:        getEnv("ITSM_URL", ""),
			AppToken:       getEnv("ITSM_APP_TOKEN", ""),
			UserToken:      getEnv("ITSM_USER_TOKEN", ""),
			RequestTimeout: time.Duration(timeoutSecs) * time.Second,
			PageSize:       pageSize,
			MaxPages:       maxPages,
			MaxRetries:          retries,
			TechnicianProfileID: techProfile,
		},
		ListenAddr:            getEnv("LISTEN_ADDR", ":8090"),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "")),
		DataPath:              dataPath,
		LogDir:                logDir,
		RangesFile:            filepath.Join(dataPath, "technician_ranges.json"),
		CacheBaseTTL:          time.Duration(cacheTTLSecs) * time.Second,
		WorkerLimit:           workerLimit,
		HighVolumeTechnicians: splitList(getEnv("HIGH_VOLUME_TECHNICIANS", "")),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
