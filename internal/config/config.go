// Package config loads the server's startup configuration from a
// JSON-with-comments file, the same format and loader tinode/jsonco
// strips before handing the reader to encoding/json.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tinode/jsonco"
)

// Config is the top-level configuration document. Fields mirror the
// enumerated configuration: listenAddress, publicRoot, userRoot, dbPath,
// plus the additional fields this implementation's ambient stack needs
// (metrics listener, S3-backed static serving, bcrypt cost, log level).
type Config struct {
	// Listen is the host:port the websocket/HTTP listener binds to
	// (listenAddress).
	Listen string `json:"listen_address"`
	// PublicRoot is the directory of built-in static files served at "/"
	// and aliased from "/main" to "RapidControl.html" (publicRoot). This
	// is the root the static-file cache actually reads from.
	PublicRoot string `json:"public_root"`
	// UserRoot, if set, is consulted before PublicRoot for every static
	// request, so a deployment can override or add files without
	// touching the built-in UI tree (userRoot).
	UserRoot string `json:"user_root"`

	// DBPath is the path to the SQLite database file.
	DBPath string `json:"db_path"`
	// BcryptCost overrides bcrypt's default work factor when non-zero.
	BcryptCost int `json:"bcrypt_cost"`

	// MetricsListen is parsed from the file but not read by the server:
	// the Prometheus /debug/metrics endpoint is always served on Listen,
	// and no separate metrics listener is started.
	MetricsListen string `json:"metrics_listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// S3Bucket, when non-empty, makes the static-file cache read from
	// this bucket first, falling back to UserRoot/PublicRoot only for
	// keys the bucket does not have.
	S3Bucket string `json:"s3_bucket"`
	// S3Region is the AWS region S3Bucket lives in.
	S3Region string `json:"s3_region"`
	// S3Prefix is prepended to every object key read from S3Bucket.
	S3Prefix string `json:"s3_prefix"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Listen:     ":6060",
		PublicRoot: "./static",
		DBPath:     "./rapidcontrol.db",
		BcryptCost: 0,
		LogLevel:   "info",
	}
}

// Load reads and parses the configuration file at path, stripping // and
// /* */ comments before decoding. Fields absent from the file keep their
// Default() value.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	jr := jsonco.New(f)
	if err := json.NewDecoder(jr).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
