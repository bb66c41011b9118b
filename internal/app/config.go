package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr           string
	DownloadsDir       string
	MongoURI           string // empty disables the download history
	MongoDatabase      string
	MongoCollection    string
	LogLevel           string
	LogFormat          string
	ListenPort         int // BitTorrent listen port; 0 = random
	UpdateIntervalMS   int64
	MetadataTimeoutSec int64
	MaxMagnetLength    int
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DownloadsDir:       getEnv("DOWNLOADS_DIR", "downloads"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "magnetstream"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "download_history"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		ListenPort:         int(getEnvInt64("TORRENT_LISTEN_PORT", 0)),
		UpdateIntervalMS:   getEnvInt64("UPDATE_INTERVAL_MS", 1000),
		MetadataTimeoutSec: getEnvInt64("METADATA_TIMEOUT_SEC", 600),
		MaxMagnetLength:    int(getEnvInt64("MAX_MAGNET_LENGTH", 2048)),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
