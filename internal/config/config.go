package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"numflow/internal/spec"
)

const SupportedSchema = "v1"

// flatEnv maps the bare environment variables the service has always
// honoured onto their koanf keys.
var flatEnv = map[string]string{
	"DOWNLOAD_DIR":   "download_dir",
	"MAX_WORKERS":    "max_workers",
	"CHUNK_SIZE":     "chunk_size",
	"MAX_RETRIES":    "max_retries",
	"TIMEOUT":        "timeout",
	"COLUMN":         "column",
	"ASSEMBLY":       "assembly",
	"ON_CHUNK_ERROR": "on_chunk_error",
}

// Load merges YAML (if present) with env-vars. Bare variables from flatEnv
// are applied first, then nested ones (prefix `NUMFLOW__`, delimiter `__`).
func Load(path string) (spec.File, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return spec.File{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return spec.File{}, fmt.Errorf("config schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return flatEnv[s]
	}), nil); err != nil {
		return spec.File{}, err
	}
	if err := k.Load(env.ProviderWithValue("NUMFLOW__", ".", nestedEnv), nil); err != nil {
		return spec.File{}, err
	}

	if err := normalizeTimeout(k); err != nil {
		return spec.File{}, err
	}
	// Defaults whose zero value is meaningful are applied only when the key
	// is absent.
	for key, def := range presenceDefaults {
		if !k.Exists(key) {
			if err := k.Set(key, def); err != nil {
				return spec.File{}, err
			}
		}
	}

	var cfg spec.File
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// nestedEnv turns NUMFLOW__FETCH__S3__ENDPOINT into fetch.s3.endpoint and
// splits comma-separated list values.
func nestedEnv(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "NUMFLOW__")), "__", ".")
	if _, ok := listKeys[key]; ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

var presenceDefaults = map[string]any{
	"timeout":             300, // 0 disables the per-chunk deadline
	"registry.persist":    true,
	"kafka.required_acks": 1, // 0 is fire-and-forget
}

// normalizeTimeout accepts whole seconds ("300") or a Go duration
// ("300s", "5m") and stores whole seconds, rounding up.
func normalizeTimeout(k *koanf.Koanf) error {
	raw, ok := k.Get("timeout").(string)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if _, err := strconv.Atoi(raw); err == nil {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("timeout %q: want seconds or a duration such as 300s", raw)
	}
	return k.Set("timeout", int(math.Ceil(d.Seconds())))
}

var listKeys = map[string]struct{}{
	"sinks":         {},
	"kafka.brokers": {},
}

func applyDefaults(c *spec.File) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 4
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 100_000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Column == "" {
		c.Column = "Amount"
	}
	if c.Assembly == "" {
		c.Assembly = "gather"
	}
	if c.OnChunkError == "" {
		c.OnChunkError = "abort"
	}
	if c.Fit.Policy == "" {
		c.Fit.Policy = "sample"
	}
	if c.Fit.SampleRows == 0 {
		c.Fit.SampleRows = 10_000
	}
	if c.Encoder.Kind == "" {
		c.Encoder.Kind = "mode"
	}
	if c.Encoder.Modes == 0 {
		c.Encoder.Modes = 10
	}
	if c.Registry.Dir == "" {
		c.Registry.Dir = filepath.Join(c.DownloadDir, "registry")
	}
	if c.Fetch.DriveBaseURL == "" {
		c.Fetch.DriveBaseURL = "https://drive.google.com"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8000"
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 7070
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9100
	}
	if c.Log.Service == "" {
		c.Log.Service = "numflow"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "numflow.jobs"
	}
}

// Validate rejects settings the pipeline cannot run with.
func Validate(c spec.File) error {
	var errs []error
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk_size must be >= 1, got %d", c.ChunkSize))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 1, got %d", c.MaxRetries))
	}
	switch c.Kafka.Acks {
	case 0, 1, -1:
	default:
		errs = append(errs, fmt.Errorf("kafka.required_acks must be 0, 1 or -1, got %d", c.Kafka.Acks))
	}
	if c.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %d", c.TimeoutSeconds))
	}
	switch c.Assembly {
	case "gather", "stream":
	default:
		errs = append(errs, fmt.Errorf("assembly %q not supported (want gather|stream)", c.Assembly))
	}
	switch c.OnChunkError {
	case "abort", "skip":
	default:
		errs = append(errs, fmt.Errorf("on_chunk_error %q not supported (want abort|skip)", c.OnChunkError))
	}
	switch c.Fit.Policy {
	case "sample", "full":
	default:
		errs = append(errs, fmt.Errorf("fit.policy %q not supported (want sample|full)", c.Fit.Policy))
	}
	if c.Fit.Policy == "sample" && c.Fit.SampleRows < 1 {
		errs = append(errs, fmt.Errorf("fit.sample_rows must be >= 1, got %d", c.Fit.SampleRows))
	}
	for _, s := range c.Sinks {
		if s == "kafka" && len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka sink enabled but kafka.brokers is empty"))
		}
	}
	return errors.Join(errs...)
}

// Timeout is the per-chunk deadline; zero disables it.
func Timeout(c spec.File) time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
