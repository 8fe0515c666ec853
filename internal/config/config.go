package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	InboxDir  string
	RawDir    string
	OutputDir string

	LogLevel  string
	LogFormat string

	SheetsCredentialsFile string
	SpreadsheetID         string
	RegistryWorksheet     string
	MasterWorksheet       string
	AuditWorksheet        string
	SheetsRateLimitRPS    int
	SheetsTimeoutMs       int
	SheetsMaxRetries      int

	MappingFile       string
	EmailDenylistFile string
	SynonymsFile      string

	WatchIntervalSec  int
	WatchProcessBatch int
	WatchAutoPush     bool
	WatchAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		RawDir:    getEnv("RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
		SpreadsheetID:         getEnv("SHEET_ID", ""),
		RegistryWorksheet:     getEnv("SHEET_REGISTRY_TAB", "COMBINED"),
		MasterWorksheet:       getEnv("SHEET_MASTER_TAB", "DB"),
		AuditWorksheet:        getEnv("SHEET_AUDIT_TAB", "UPLOAD_PROCESS"),
		SheetsRateLimitRPS:    getEnvInt("SHEETS_RATE_LIMIT_RPS", 1),
		SheetsTimeoutMs:       getEnvInt("SHEETS_TIMEOUT_MS", 30000),
		SheetsMaxRetries:      getEnvInt("SHEETS_MAX_RETRIES", 4),

		MappingFile:       getEnv("MAPPING_FILE", ""),
		EmailDenylistFile: getEnv("EMAIL_DENYLIST_FILE", ""),
		SynonymsFile:      getEnv("HEADER_SYNONYMS_FILE", ""),

		WatchIntervalSec:  getEnvInt("WATCH_INTERVAL_SEC", 30),
		WatchProcessBatch: getEnvInt("WATCH_PROCESS_BATCH", 5),
		WatchAutoPush:     getEnvBool("WATCH_AUTO_PUSH", true),
		WatchAutoExport:   getEnvBool("WATCH_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
