// Package config loads the recognised configuration options of §6 with
// precedence flag > env > file > default, following the teacher's
// settings.Arguments struct-plus-flag.StringVar wiring, extended with a
// .env-style file tier via github.com/joho/godotenv.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// PatchNull selects how PATCH null values are handled, per §6.
type PatchNull string

const (
	PatchNullStore  PatchNull = "store"
	PatchNullDelete PatchNull = "delete"
)

// GraphMode selects the edge-index persistence strategy, per §4.5.
type GraphMode string

const (
	GraphMemory  GraphMode = "memory"
	GraphIndexed GraphMode = "indexed"
)

// CacheType selects the document-level read-through cache backend.
type CacheType string

const (
	CacheTTL   CacheType = "ttlcache"
	CacheRedis CacheType = "redis"
)

// Config is the full set of recognised options from §6.
type Config struct {
	Host             string
	Port             int
	PatchNull        PatchNull
	CacheTTLSeconds  int
	DefaultPageSize  int
	Schema           string
	CascadingDelete  bool
	GraphEnabled     bool
	GraphMode        GraphMode
	FulltextEnabled  bool
	CacheType        CacheType
	RedisHost        string
	RedisPort        int
	MaxQueryDepth    int
	QueryWorkerCount int
	QueryTimeoutSecs int
	DataDir          string
	EnvFile          string
}

// Defaults returns the built-in default configuration.
func Defaults() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8080,
		PatchNull:        PatchNullStore,
		CacheTTLSeconds:  300,
		DefaultPageSize:  20,
		Schema:           "default",
		CascadingDelete:  false,
		GraphEnabled:     true,
		GraphMode:        GraphMemory,
		FulltextEnabled:  false,
		CacheType:        CacheTTL,
		RedisHost:        "localhost",
		RedisPort:        6379,
		MaxQueryDepth:    10,
		QueryWorkerCount: 4,
		QueryTimeoutSecs: 30,
		DataDir:          "./data",
		EnvFile:          ".env",
	}
}

// Load resolves Config from flags, environment variables, and an
// optional .env-style file, in that precedence: flag > env > file >
// default. args is typically os.Args[1:]; passing it explicitly keeps
// this testable without a process restart.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("rserv", flag.ContinueOnError)
	envFile := fs.String("env-file", cfg.EnvFile, "path to a .env-style configuration file")
	host := fs.String("host", "", "listen host")
	port := fs.Int("port", 0, "listen port")
	patchNull := fs.String("patch_null", "", "patch null policy: store or delete")
	cacheTTL := fs.Int("cache_ttl", 0, "result cache TTL in seconds")
	pageSize := fs.Int("default_page_size", 0, "default list page size")
	schemaName := fs.String("schema", "", "schema name")
	cascadingDelete := fs.Bool("cascading_delete", false, "enable cascade delete")
	graphEnabled := fs.Bool("graph_enabled", false, "enable the graph overlay")
	graphMode := fs.String("rserv_graph", "", "graph index mode: memory or indexed")
	fulltextEnabled := fs.Bool("fulltext_enabled", false, "enable full-text search")
	cacheType := fs.String("cache_type", "", "document cache backend: ttlcache or redis")
	redisHost := fs.String("redis_host", "", "redis host")
	redisPort := fs.Int("redis_port", 0, "redis port")
	maxQueryDepth := fs.Int("max_query_depth", 0, "maximum graph query traversal depth")
	queryWorkers := fs.Int("query_worker_count", 0, "graph query worker pool size")
	queryTimeout := fs.Int("query_timeout", 0, "graph query timeout in seconds")
	dataDir := fs.String("datadir", "", "data root directory")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	// godotenv.Load never overwrites a variable already present in the
	// process environment, so the file tier naturally sits below env
	// and above defaults once we read everything back through os.Getenv.
	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}
	applyEnv(&cfg, envMap())

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "patch_null":
			cfg.PatchNull = PatchNull(*patchNull)
		case "cache_ttl":
			cfg.CacheTTLSeconds = *cacheTTL
		case "default_page_size":
			cfg.DefaultPageSize = *pageSize
		case "schema":
			cfg.Schema = *schemaName
		case "cascading_delete":
			cfg.CascadingDelete = *cascadingDelete
		case "graph_enabled":
			cfg.GraphEnabled = *graphEnabled
		case "rserv_graph":
			cfg.GraphMode = GraphMode(*graphMode)
		case "fulltext_enabled":
			cfg.FulltextEnabled = *fulltextEnabled
		case "cache_type":
			cfg.CacheType = CacheType(*cacheType)
		case "redis_host":
			cfg.RedisHost = *redisHost
		case "redis_port":
			cfg.RedisPort = *redisPort
		case "max_query_depth":
			cfg.MaxQueryDepth = *maxQueryDepth
		case "query_worker_count":
			cfg.QueryWorkerCount = *queryWorkers
		case "query_timeout":
			cfg.QueryTimeoutSecs = *queryTimeout
		case "datadir":
			cfg.DataDir = *dataDir
		}
	})

	return cfg, nil
}

func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		}
	}
	return out
}

// applyEnv overlays RSERV_-prefixed keys onto cfg. Both the live
// environment and the parsed .env file are fed through this so file
// values sit below env values and above defaults, per the precedence
// chain.
func applyEnv(cfg *Config, vars map[string]string) {
	get := func(key string) (string, bool) {
		v, ok := vars["RSERV_"+strings.ToUpper(key)]
		return v, ok
	}
	if v, ok := get("host"); ok {
		cfg.Host = v
	}
	if v, ok := get("port"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := get("patch_null"); ok {
		cfg.PatchNull = PatchNull(v)
	}
	if v, ok := get("cache_ttl"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSeconds = n
		}
	}
	if v, ok := get("default_page_size"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultPageSize = n
		}
	}
	if v, ok := get("schema"); ok {
		cfg.Schema = v
	}
	if v, ok := get("cascading_delete"); ok {
		cfg.CascadingDelete = v == "true" || v == "1"
	}
	if v, ok := get("graph_enabled"); ok {
		cfg.GraphEnabled = v == "true" || v == "1"
	}
	if v, ok := get("rserv_graph"); ok {
		cfg.GraphMode = GraphMode(v)
	}
	if v, ok := get("fulltext_enabled"); ok {
		cfg.FulltextEnabled = v == "true" || v == "1"
	}
	if v, ok := get("cache_type"); ok {
		cfg.CacheType = CacheType(v)
	}
	if v, ok := get("redis_host"); ok {
		cfg.RedisHost = v
	}
	if v, ok := get("redis_port"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisPort = n
		}
	}
	if v, ok := get("max_query_depth"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxQueryDepth = n
		}
	}
	if v, ok := get("query_worker_count"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryWorkerCount = n
		}
	}
	if v, ok := get("query_timeout"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryTimeoutSecs = n
		}
	}
	if v, ok := get("datadir"); ok {
		cfg.DataDir = v
	}
}
