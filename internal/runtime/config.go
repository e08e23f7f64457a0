package runtime

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration for one actorcored node.
// Every section is optional and defaults to "feature off" — a zero-value
// Config runs a single-node runtime with no admin surface, no audit sink,
// no harbor, and tracing disabled.
type Config struct {
	NodeID    uint8             `yaml:"node_id"`
	Workers   int               `yaml:"workers"`
	SvclogDir string            `yaml:"svclog_dir"`
	Bootstrap []BootstrapConfig `yaml:"bootstrap"`

	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Admin   AdminConfig   `yaml:"admin"`
	Audit   AuditConfig   `yaml:"audit"`
	Harbor  HarborConfig  `yaml:"harbor"`
}

// BootstrapConfig launches one module at startup: the LAUNCH verb,
// applied automatically instead of waiting for an operator command.
type BootstrapConfig struct {
	Module string   `yaml:"module"`
	Args   []string `yaml:"args"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	// Exporter selects the dispatch-span backend: "none" (default),
	// "stdout", "jaeger", or "zipkin".
	Exporter    string `yaml:"exporter"`
	ServiceName string `yaml:"service_name"`
	// Endpoint is the collector URL for the jaeger/zipkin exporters.
	Endpoint string `yaml:"endpoint"`
}

type AdminConfig struct {
	Addr      string `yaml:"addr"`
	WSAddr    string `yaml:"ws_addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

type AuditConfig struct {
	// Driver selects the Store backend: "" (disabled), "memory",
	// "sqlite", or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HarborConfig struct {
	NATSURL string `yaml:"nats_url"`
	Prefix  string `yaml:"prefix"`
}

// defaultEnvPrefix matches the teacher's pkg/config convention
// (PREFIX_FIELD_SUBFIELD, upper-cased struct field names).
const defaultEnvPrefix = "ACTORCORED"

// LoadConfig reads YAML from path and applies ACTORCORED_* environment
// overrides, grounded on the teacher's pkg/config.LoadWithEnv (same
// load-then-override-via-reflection shape, narrowed to this runtime's own
// fixed config schema instead of a generic arbitrary-target loader).
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Workers: 8}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("runtime: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("runtime: parse config %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(defaultEnvPrefix, reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("runtime: apply env overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides walks val's fields, recursing into nested structs, and
// overwrites any field whose PREFIX_FIELDNAME environment variable is set.
func applyEnvOverrides(prefix string, val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		envKey := prefix + "_" + strings.ToUpper(typ.Field(i).Name)

		if field.Kind() == reflect.Struct {
			if err := applyEnvOverrides(envKey, field); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}
		if err := setFromEnv(field, raw); err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return nil
}

func setFromEnv(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(strings.Split(raw, ",")))
		}
	}
	return nil
}
