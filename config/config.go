package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port             string
	Timezone         string
	DBPath           string
	PolicyFile       string
	ProfileXLSX      string
	ProfileDir       string
	EnvProviderURL   string
	EnvProviderRPS   float64
	SnapshotCacheDir string
	NATSURL          string
	NATSSubject      string
	EnableCron       bool
	TraceExporter    string
	OTLPEndpoint     string
	OTLPInsecure     bool
}

func Load() AppConfig {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("[cfg] No .env file found or error loading: %v", err)
	}

	get := func(k, def string) string {
		if v := os.Getenv(k); v != "" {
			return v
		}
		return def
	}
	rps, err := strconv.ParseFloat(get("ENV_PROVIDER_RPS", "5"), 64)
	if err != nil || rps <= 0 {
		log.Printf("[cfg] ENV_PROVIDER_RPS invalid, using 5")
		rps = 5
	}
	cfg := AppConfig{
		Port:             get("PORT", "8080"),
		Timezone:         get("TZ", "Asia/Bangkok"),
		DBPath:           get("DB_PATH", "cropcal.db"),
		PolicyFile:       get("POLICY_FILE", ""),
		ProfileXLSX:      get("PROFILE_XLSX", ""),
		ProfileDir:       get("PROFILE_DIR", ""),
		EnvProviderURL:   get("ENV_PROVIDER_URL", ""),
		EnvProviderRPS:   rps,
		SnapshotCacheDir: get("SNAPSHOT_CACHE_DIR", ""),
		NATSURL:          get("NATS_URL", ""),
		NATSSubject:      get("NATS_SUBJECT", "cropcal.snapshot.refresh"),
		EnableCron:       get("ENABLE_CRON", "true") == "true",
		TraceExporter:    get("OTEL_TRACES_EXPORTER", "none"),
		OTLPEndpoint:     get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:     get("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
	}
	log.Printf("[cfg] %+v", cfg)
	return cfg
}
