package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

func String(key, def string, log *logger.Logger) string {
	val, ok := lookup(key)
	if !ok {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	debug(log, key, "Environment variable found, using environment", "value", val)
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	raw, ok := lookup(key)
	if !ok {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		debug(log, key, "Environment variable could not be parsed as int, using default", "provided", raw, "default", def, "error", err)
		return def
	}
	return i
}

func Bool(key string, def bool, log *logger.Logger) bool {
	raw, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	}
	debug(log, key, "Environment variable could not be parsed as bool, using default", "provided", raw, "default", def)
	return def
}

func Float(key string, def float64, log *logger.Logger) float64 {
	raw, ok := lookup(key)
	if !ok {
		debug(log, key, "Environment variable not found, using default", "default", def)
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		debug(log, key, "Environment variable could not be parsed as float, using default", "provided", raw, "default", def, "error", err)
		return def
	}
	return f
}

// Millis reads an integer number of milliseconds.
func Millis(key string, def time.Duration, log *logger.Logger) time.Duration {
	ms := Int(key, int(def/time.Millisecond), log)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// List splits a comma separated value, dropping empty entries.
func List(key string, log *logger.Logger) []string {
	raw := String(key, "", log)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func debug(log *logger.Logger, key, msg string, kv ...interface{}) {
	if log == nil {
		return
	}
	log.With("env_var", key).Debug(msg, kv...)
}
