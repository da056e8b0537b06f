package core

import (
	"time"
)

type Config struct {
	Relay   RelayConfig
	Cache   CacheConfig
	Library LibraryConfig
	Publish PublishConfig
	Server  ServerConfig
	Log     LogConfig
}

type RelayConfig struct {
	URLs           []string
	QueryTimeout   time.Duration
	PublishTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

type CacheConfig struct {
	SnapshotDir           string
	FreshFor              time.Duration
	ExpireAfter           time.Duration
	TrackCacheSize        int
	SeenCapacity          int
	SeenFalsePositiveRate float64
}

type LibraryConfig struct {
	Path string
}

type PublishConfig struct {
	KeyPath string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			URLs:           []string{"wss://relay.chorus.example"},
			QueryTimeout:   8 * time.Second,
			PublishTimeout: 10 * time.Second,
			RatePerSecond:  10,
			RateBurst:      20,
		},
		Cache: CacheConfig{
			SnapshotDir:           "./snapshots",
			FreshFor:              15 * time.Minute,
			ExpireAfter:           6 * time.Hour,
			TrackCacheSize:        512,
			SeenCapacity:          10000,
			SeenFalsePositiveRate: 0.001,
		},
		Library: LibraryConfig{
			Path: "./chorus_library.db",
		},
		Publish: PublishConfig{
			KeyPath: "./chorus_key.hex",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
