package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig controls the fixed-window request limiter.  General limits
// apply to the notes and categories API, auth limits to the public auth routes.
type RateLimitConfig struct {
	Enabled    bool
	Backend    string // mysql | redis | memory
	Limit      int
	Window     time.Duration
	AuthLimit  int
	AuthWindow time.Duration
	Prefix     string // redis key prefix
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:    envBool("RATE_LIMIT_ENABLED", true),
		Backend:    strings.ToLower(envStr("RATE_LIMIT_BACKEND", "mysql")),
		Limit:      envInt("RATE_LIMIT_LIMIT", 100),
		Window:     envDur("RATE_LIMIT_WINDOW", 15*time.Minute),
		AuthLimit:  envInt("AUTH_RATE_LIMIT_LIMIT", 10),
		AuthWindow: envDur("AUTH_RATE_LIMIT_WINDOW", 15*time.Minute),
		Prefix:     envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	switch def.Backend {
	case "redis", "memory":
	default:
		def.Backend = "mysql"
	}
	if def.Limit < 1 { def.Limit = 1 }
	if def.AuthLimit < 1 { def.AuthLimit = 1 }
	if def.Window <= 0 { def.Window = 15 * time.Minute }
	if def.AuthWindow <= 0 { def.AuthWindow = 15 * time.Minute }
	return def
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" { return d }
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON": return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF": return false
	}
	return d
}
func envInt(k string, d int) int {
	v := os.Getenv(k); if v == "" { return d }
	if n, err := strconv.Atoi(v); err == nil { return n }
	return d
}
func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k); if v == "" { return d }
	if dur, err := time.ParseDuration(v); err == nil { return dur }
	return d
}
