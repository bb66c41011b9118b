package app

import (
	"os"
	"reflect"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "DOWNLOADS_DIR", "MONGO_URI", "MONGO_DB", "MONGO_COLLECTION",
		"LOG_LEVEL", "LOG_FORMAT", "TORRENT_LISTEN_PORT", "UPDATE_INTERVAL_MS",
		"METADATA_TIMEOUT_SEC", "MAX_MAGNET_LENGTH", "CORS_ALLOWED_ORIGINS",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"DownloadsDir", cfg.DownloadsDir, "downloads"},
		{"MongoURI", cfg.MongoURI, ""},
		{"MongoDatabase", cfg.MongoDatabase, "magnetstream"},
		{"MongoCollection", cfg.MongoCollection, "download_history"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"ListenPort", cfg.ListenPort, 0},
		{"UpdateIntervalMS", cfg.UpdateIntervalMS, int64(1000)},
		{"MetadataTimeoutSec", cfg.MetadataTimeoutSec, int64(600)},
		{"MaxMagnetLength", cfg.MaxMagnetLength, 2048},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("CORSAllowedOrigins = %v, want nil", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("DOWNLOADS_DIR", "/srv/dl")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("UPDATE_INTERVAL_MS", "250")
	t.Setenv("MAX_MAGNET_LENGTH", "4096")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example ,")

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DownloadsDir != "/srv/dl" {
		t.Errorf("DownloadsDir = %q", cfg.DownloadsDir)
	}
	if cfg.MongoURI != "mongodb://db:27017" {
		t.Errorf("MongoURI = %q", cfg.MongoURI)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lowercased", cfg.LogLevel)
	}
	if cfg.UpdateIntervalMS != 250 {
		t.Errorf("UpdateIntervalMS = %d", cfg.UpdateIntervalMS)
	}
	if cfg.MaxMagnetLength != 4096 {
		t.Errorf("MaxMagnetLength = %d", cfg.MaxMagnetLength)
	}
	want := []string{"http://a.example", "http://b.example"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
}

func TestGetEnvInt64RejectsGarbage(t *testing.T) {
	t.Setenv("UPDATE_INTERVAL_MS", "not-a-number")
	if got := LoadConfig().UpdateIntervalMS; got != 1000 {
		t.Errorf("UpdateIntervalMS = %d, want fallback 1000", got)
	}

	t.Setenv("UPDATE_INTERVAL_MS", "-50")
	if got := LoadConfig().UpdateIntervalMS; got != 1000 {
		t.Errorf("UpdateIntervalMS = %d for negative input, want fallback", got)
	}
}
