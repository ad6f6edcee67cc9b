package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overlays BTCHAT_* environment variables onto cfg. Empty or
// unparsable values are ignored.
//
//	BTCHAT_TRANSPORT        bluez | memory
//	BTCHAT_ADAPTER          adapter or local name
//	BTCHAT_SERVICE_NAME     service record name
//	BTCHAT_SERVICE_UUID     service record UUID
//	BTCHAT_CHANNEL          RFCOMM channel
//	BTCHAT_READ_BUFFER      read chunk size in bytes
//	BTCHAT_CONNECT_TIMEOUT  duration, e.g. 20s
//	BTCHAT_SCAN_TIMEOUT     duration
//	BTCHAT_VERBOSE          0-3
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BTCHAT_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("BTCHAT_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := os.Getenv("BTCHAT_SERVICE_NAME"); v != "" {
		cfg.Service.Name = v
	}
	if v := os.Getenv("BTCHAT_SERVICE_UUID"); v != "" {
		cfg.Service.UUID = v
	}
	if v, ok := envInt("BTCHAT_CHANNEL"); ok {
		cfg.Service.Channel = v
	}
	if v, ok := envInt("BTCHAT_READ_BUFFER"); ok {
		cfg.ReadBufferSize = v
	}
	if v, ok := envDuration("BTCHAT_CONNECT_TIMEOUT"); ok {
		cfg.ConnectTimeout = v
	}
	if v, ok := envDuration("BTCHAT_SCAN_TIMEOUT"); ok {
		cfg.ScanTimeout = v
	}
	if v, ok := envInt("BTCHAT_VERBOSE"); ok {
		cfg.Verbose = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
