package envconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}

		return false
	}
}

func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

var (
	// Debug enables additional debug information.
	Debug = Bool("LOADSTONE_DEBUG")
	// ShardPattern overrides the glob used to locate shard files.
	ShardPattern = String("LOADSTONE_SHARD_PATTERN")
)

// CacheDir returns the directory layer cache files are stored in when
// the caller does not pass an explicit cache path.
func CacheDir() string {
	if s := Var("LOADSTONE_CACHE_DIR"); s != "" {
		return s
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".loadstone", "cache")
	}

	return filepath.Join(dir, "loadstone")
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LOADSTONE_DEBUG":         {"LOADSTONE_DEBUG", Debug(), "Show additional debug information (e.g. LOADSTONE_DEBUG=1)"},
		"LOADSTONE_CACHE_DIR":     {"LOADSTONE_CACHE_DIR", CacheDir(), "Directory for layer cache files"},
		"LOADSTONE_SHARD_PATTERN": {"LOADSTONE_SHARD_PATTERN", ShardPattern(), "Override the shard file glob pattern"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
