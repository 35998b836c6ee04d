// Package config loads jatspkg settings. Values are layered: built-in
// defaults, then the YAML config file, then a .env file, then JATSPKG_*
// environment variables. Command-line flags are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the directory name under XDG_CONFIG_HOME and XDG_DATA_HOME.
	Dir = "jatspkg"
	// File is the config file name.
	File = "config.yml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "JATSPKG_"
)

// Config holds every setting the CLI and the API server read.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// BaseURL prefixes content-hash links in rendered HTML.
	BaseURL string `yaml:"base_url"`
	// StoreDir is the content-addressed blob store root. Empty disables it.
	StoreDir string `yaml:"store_dir"`
	// Catalog is the SQLite conversion catalog. Empty disables it.
	Catalog string `yaml:"catalog"`

	Workers         int   `yaml:"workers"`
	DigestCacheSize int   `yaml:"digest_cache_size"`
	MaxUnpackBytes  int64 `yaml:"max_unpack_bytes"`
	MaxUnpackFiles  int   `yaml:"max_unpack_files"`

	Server Server `yaml:"server"`
}

// Server holds API server settings.
type Server struct {
	Addr           string   `yaml:"addr"`
	WorkDir        string   `yaml:"work_dir"`
	APIKey         string   `yaml:"api_key"`
	RateLimit      float64  `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst      int      `yaml:"rate_burst"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in settings.
func Default() *Config {
	data := dataHome()
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		BaseURL:         "",
		StoreDir:        filepath.Join(data, "blobs"),
		Catalog:         filepath.Join(data, "catalog.db"),
		DigestCacheSize: 4096,
		Server: Server{
			Addr:           ":8080",
			WorkDir:        filepath.Join(data, "jobs"),
			RateLimit:      2,
			RateBurst:      10,
			MaxUploadBytes: 512 << 20,
		},
	}
}

// Path returns the default config file path. Respects XDG_CONFIG_HOME,
// defaults to ~/.config/jatspkg/config.yml.
func Path() string {
	home := os.Getenv("XDG_CONFIG_HOME")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		home = filepath.Join(h, ".config")
	}
	return filepath.Join(home, Dir, File)
}

func dataHome() string {
	home := os.Getenv("XDG_DATA_HOME")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return Dir
		}
		home = filepath.Join(h, ".local", "share")
	}
	return filepath.Join(home, Dir)
}

// Load builds a Config. path names the YAML file; when empty the default
// path is used and a missing file is not an error. envFile names a dotenv
// file read for JATSPKG_* values; a missing one is skipped. Real
// environment variables win over the dotenv file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	env := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	cfg.StoreDir = ExpandTilde(cfg.StoreDir)
	cfg.Catalog = ExpandTilde(cfg.Catalog)
	cfg.Server.WorkDir = ExpandTilde(cfg.Server.WorkDir)
	return cfg, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	strs := map[string]*string{
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_FORMAT":      &c.LogFormat,
		"BASE_URL":        &c.BaseURL,
		"STORE_DIR":       &c.StoreDir,
		"CATALOG":         &c.Catalog,
		"SERVER_ADDR":     &c.Server.Addr,
		"SERVER_WORK_DIR": &c.Server.WorkDir,
		"API_KEY":         &c.Server.APIKey,
	}
	ints := map[string]*int{
		"WORKERS":           &c.Workers,
		"DIGEST_CACHE_SIZE": &c.DigestCacheSize,
		"MAX_UNPACK_FILES":  &c.MaxUnpackFiles,
		"RATE_BURST":        &c.Server.RateBurst,
	}
	int64s := map[string]*int64{
		"MAX_UNPACK_BYTES": &c.MaxUnpackBytes,
		"MAX_UPLOAD_BYTES": &c.Server.MaxUploadBytes,
	}

	for key, val := range env {
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok {
			continue
		}
		var err error
		if p, ok := strs[name]; ok {
			*p = val
		} else if p, ok := ints[name]; ok {
			*p, err = strconv.Atoi(val)
		} else if p, ok := int64s[name]; ok {
			*p, err = strconv.ParseInt(val, 10, 64)
		} else if name == "RATE_LIMIT" {
			c.Server.RateLimit, err = strconv.ParseFloat(val, 64)
		} else if name == "ALLOWED_ORIGINS" {
			c.Server.AllowedOrigins = splitList(val)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandTilde replaces a leading ~ with the user's home directory.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
