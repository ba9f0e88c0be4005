// Package config carga la configuración YAML del servicio y aplica
// overrides desde variables de entorno.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | fs | badger | postgres | partition
		Driver  string `yaml:"driver"`
		DataDir string `yaml:"data_dir"`
		DSN     string `yaml:"dsn"`

		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`

		// hash_algo: sha256 | blake2b
		HashAlgo string `yaml:"hash_algo"`
	} `yaml:"storage"`

	Partition struct {
		NodeID string `yaml:"node_id"`
		// last_write_wins | first_write_wins | keep_all | custom
		ConflictStrategy string `yaml:"conflict_strategy"`
		MaxPendingWrites int    `yaml:"max_pending_writes"`
		EnableReadRepair bool   `yaml:"enable_read_repair"`
		QuorumReads      bool   `yaml:"quorum_reads"`
		QuorumWrites     bool   `yaml:"quorum_writes"`
	} `yaml:"partition"`

	Cluster struct {
		Enabled  bool              `yaml:"enabled"`
		RaftAddr string            `yaml:"raft_addr"`
		RaftDir  string            `yaml:"raft_dir"`
		Peers    map[string]string `yaml:"peers"` // nodeID -> raftAddr

		BootstrapPreferred bool `yaml:"bootstrap_preferred"`
		DisableBootstrap   bool `yaml:"disable_bootstrap"`

		Watch struct {
			Interval  string `yaml:"interval"`
			Threshold int    `yaml:"threshold"`
		} `yaml:"watch"`

		TLS struct {
			Enable     bool   `yaml:"enable"`
			CertFile   string `yaml:"cert_file"`
			KeyFile    string `yaml:"key_file"`
			CAFile     string `yaml:"ca_file"`
			ServerName string `yaml:"server_name"`
		} `yaml:"tls"`
	} `yaml:"cluster"`

	Cache struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis
		Driver     string `yaml:"driver"`
		Prefix     string `yaml:"prefix"`
		DefaultTTL string `yaml:"default_ttl"`

		Redis struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Alert struct {
		SMTP struct {
			Host     string   `yaml:"host"`
			Port     int      `yaml:"port"`
			From     string   `yaml:"from"`
			To       []string `yaml:"to"`
			Username string   `yaml:"username"`
			Password string   `yaml:"password"`
			// auto | starttls | ssl | none
			TLSMode            string `yaml:"tls_mode"`
			InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		} `yaml:"smtp"`
	} `yaml:"alert"`
}

// Load lee el YAML, aplica defaults y pisa con env vars.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.HashAlgo == "" {
		c.Storage.HashAlgo = "sha256"
	}
	if c.Partition.ConflictStrategy == "" {
		c.Partition.ConflictStrategy = "last_write_wins"
	}
	if c.Partition.MaxPendingWrites == 0 {
		c.Partition.MaxPendingWrites = 1000
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.DefaultTTL == "" {
		c.Cache.DefaultTTL = "2m"
	}
	if c.Cluster.Watch.Interval == "" {
		c.Cluster.Watch.Interval = "2s"
	}
	if c.Cluster.Watch.Threshold == 0 {
		c.Cluster.Watch.Threshold = 3
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DATA_DIR"); ok {
		c.Storage.DataDir = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("STORAGE_HASH_ALGO"); ok {
		c.Storage.HashAlgo = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}

	// PARTITION
	if v, ok := getEnvStr("PARTITION_NODE_ID"); ok {
		c.Partition.NodeID = v
	}
	if v, ok := getEnvStr("PARTITION_CONFLICT_STRATEGY"); ok {
		c.Partition.ConflictStrategy = v
	}
	if v, ok := getEnvInt("PARTITION_MAX_PENDING_WRITES"); ok {
		c.Partition.MaxPendingWrites = v
	}
	if v, ok := getEnvBool("PARTITION_ENABLE_READ_REPAIR"); ok {
		c.Partition.EnableReadRepair = v
	}
	if v, ok := getEnvBool("PARTITION_QUORUM_READS"); ok {
		c.Partition.QuorumReads = v
	}
	if v, ok := getEnvBool("PARTITION_QUORUM_WRITES"); ok {
		c.Partition.QuorumWrites = v
	}

	// CLUSTER
	if v, ok := getEnvBool("CLUSTER_ENABLED"); ok {
		c.Cluster.Enabled = v
	}
	if v, ok := getEnvStr("CLUSTER_RAFT_ADDR"); ok {
		c.Cluster.RaftAddr = v
	}
	if v, ok := getEnvStr("CLUSTER_RAFT_DIR"); ok {
		c.Cluster.RaftDir = v
	}
	if v, ok := getEnvKVList("CLUSTER_PEERS", ","); ok {
		c.Cluster.Peers = v
	}
	if v, ok := getEnvBool("CLUSTER_BOOTSTRAP_PREFERRED"); ok {
		c.Cluster.BootstrapPreferred = v
	}
	if v, ok := getEnvBool("CLUSTER_DISABLE_BOOTSTRAP"); ok {
		c.Cluster.DisableBootstrap = v
	}

	// CACHE
	if v, ok := getEnvBool("CACHE_ENABLED"); ok {
		c.Cache.Enabled = v
	}
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_HOST"); ok {
		c.Cache.Redis.Host = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_PORT"); ok {
		c.Cache.Redis.Port = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}

	// ALERT
	if v, ok := getEnvStr("ALERT_SMTP_HOST"); ok {
		c.Alert.SMTP.Host = v
	}
	if v, ok := getEnvInt("ALERT_SMTP_PORT"); ok {
		c.Alert.SMTP.Port = v
	}
	if v, ok := getEnvStr("ALERT_SMTP_FROM"); ok {
		c.Alert.SMTP.From = v
	}
	if v, ok := getEnvCSV("ALERT_SMTP_TO"); ok {
		c.Alert.SMTP.To = v
	}
	if v, ok := getEnvStr("ALERT_SMTP_USERNAME"); ok {
		c.Alert.SMTP.Username = v
	}
	if v, ok := getEnvStr("ALERT_SMTP_PASSWORD"); ok {
		c.Alert.SMTP.Password = v
	}
}

// Validate chequea combinaciones inválidas que conviene rechazar al boot.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "fs", "badger", "postgres", "pg", "partition":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if (c.Storage.Driver == "fs" || c.Storage.Driver == "badger") && c.Storage.DataDir == "" {
		return fmt.Errorf("config: storage.data_dir is required for driver %q", c.Storage.Driver)
	}
	if (c.Storage.Driver == "postgres" || c.Storage.Driver == "pg") && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required for driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "partition" && c.Partition.NodeID == "" {
		return fmt.Errorf("config: partition.node_id is required for driver partition")
	}
	if c.Cluster.Enabled {
		if c.Storage.Driver != "partition" {
			return fmt.Errorf("config: cluster requires storage.driver=partition, got %q", c.Storage.Driver)
		}
		if c.Cluster.RaftAddr == "" || c.Cluster.RaftDir == "" {
			return fmt.Errorf("config: cluster.raft_addr and cluster.raft_dir are required")
		}
	}
	for _, field := range []struct{ name, val string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"cache.default_ttl", c.Cache.DefaultTTL},
		{"cluster.watch.interval", c.Cluster.Watch.Interval},
	} {
		if _, err := time.ParseDuration(field.val); err != nil {
			return fmt.Errorf("config: invalid duration %s=%q", field.name, field.val)
		}
	}
	return nil
}

// Duration parsea un campo de duración ya validado.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ─── env helpers ───

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// getEnvKVList parsea "k1=v1,k2=v2" en un mapa.
func getEnvKVList(key, sep string) (map[string]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, sep) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return out, true
}
