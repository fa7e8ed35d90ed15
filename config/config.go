/*
Package config loads deployment settings for the measurement engine.

PURPOSE:
  One place for every knob the core is parameterized by (header row, auto
  columns, default persistent headers) plus the outer surfaces (store
  backend, HTTP port, logging).

RESOLUTION ORDER (later wins):
  1. Defaults()
  2. YAML file (optional; a missing file is not an error when no path is given)
  3. MEASURE_* environment variables

ENVIRONMENT:
  MEASURE_HEADER_ROW          int
  MEASURE_DEFAULT_PERSISTENT  comma-separated names
  MEASURE_STORE               sidecar|sqlite
  MEASURE_SIDECAR_DIR         path
  MEASURE_SQLITE_PATH         path
  MEASURE_HTTP_PORT           int
  MEASURE_HTTP_ORIGINS        comma-separated CORS origins
  MEASURE_LOG_LEVEL           trace|debug|info|warn|error
  MEASURE_LOG_FORMAT          console|json

  Auto columns are only configurable in the file; their order matters.

EXAMPLE:
  header_row: 1
  auto_columns:
    - {name: Zeit, source: timestamp}
    - {name: Mitarbeiter, source: operator}
  default_persistent: [Charge_#, FA_#, Rolle_#]
  store: sidecar
  sidecar_dir: data/configs
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/warp/measure-engine/logging"
	"github.com/warp/measure-engine/measure"
)

const envPrefix = "MEASURE_"

// Store backends.
const (
	StoreSidecar = "sidecar"
	StoreSQLite  = "sqlite"
)

// DefaultPath is read when no --config flag is given, if it exists.
const DefaultPath = "measure.yaml"

type Config struct {
	HeaderRow         int                  `yaml:"header_row" validate:"min=1"`
	AutoColumns       []measure.AutoColumn `yaml:"auto_columns" validate:"dive"`
	DefaultPersistent []string             `yaml:"default_persistent"`

	Store      string `yaml:"store" validate:"oneof=sidecar sqlite"`
	SidecarDir string `yaml:"sidecar_dir" validate:"required_if=Store sidecar"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Store sqlite"`

	HTTP HTTPConfig `yaml:"http"`
	Log  LogConfig  `yaml:"log"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"loglevel"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HeaderRow:         1,
		AutoColumns:       measure.DefaultAutoColumns(),
		DefaultPersistent: []string{"Charge_#", "FA_#", "Rolle_#"},
		Store:             StoreSidecar,
		SidecarDir:        "data/configs",
		SQLitePath:        "data/classifications.db",
		HTTP: HTTPConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load resolves the configuration. An empty path reads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	getInt := func(key string, dst *int) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %q is not an integer", envPrefix, key, v)
		}
		*dst = n
		return nil
	}

	if err := getInt("HEADER_ROW", &cfg.HeaderRow); err != nil {
		return err
	}
	if err := getInt("HTTP_PORT", &cfg.HTTP.Port); err != nil {
		return err
	}
	if v, ok := get("DEFAULT_PERSISTENT"); ok {
		cfg.DefaultPersistent = splitList(v)
	}
	if v, ok := get("STORE"); ok {
		cfg.Store = strings.ToLower(v)
	}
	if v, ok := get("SIDECAR_DIR"); ok {
		cfg.SidecarDir = v
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.SQLitePath = v
	}
	if v, ok := get("HTTP_ORIGINS"); ok {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logging.ValidLevel(fl.Field().String())
	})
	return v
}

// Validate checks field constraints and the auto column list.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := measure.CheckAutoColumns(c.AutoColumns); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Settings returns the core settings slice of the configuration.
func (c Config) Settings() measure.Settings {
	return measure.Settings{
		HeaderRow:         c.HeaderRow,
		AutoColumns:       append([]measure.AutoColumn{}, c.AutoColumns...),
		DefaultPersistent: append([]string{}, c.DefaultPersistent...),
	}
}

// LoggingOptions maps the log section onto logging.Options.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, Service: "measure"}
}
