package spec

// File is the service configuration as read from YAML and the environment.
// Top-level scalar keys keep the names of the environment variables they
// are sourced from (DOWNLOAD_DIR, MAX_WORKERS, ...), lower-cased.
type File struct {
	SchemaVersion string `koanf:"schema_version"`

	DownloadDir    string `koanf:"download_dir"`
	MaxWorkers     int    `koanf:"max_workers"`
	ChunkSize      int    `koanf:"chunk_size"`
	MaxRetries     int    `koanf:"max_retries"`
	TimeoutSeconds int    `koanf:"timeout"` // per-chunk, seconds ("300" or "300s"); 0 = none

	Column       string `koanf:"column"`
	Assembly     string `koanf:"assembly"`       // gather|stream
	OnChunkError string `koanf:"on_chunk_error"` // abort|skip

	Fit      FitSection      `koanf:"fit"`
	Encoder  EncoderSection  `koanf:"encoder"`
	Registry RegistrySection `koanf:"registry"`
	Fetch    FetchSection    `koanf:"fetch"`
	Server   ServerSection   `koanf:"server"`

	// Ordered list of job-event sinks ("stdout", "kafka").
	Sinks []string     `koanf:"sinks"`
	Kafka KafkaSection `koanf:"kafka"`
	Log   LogSection   `koanf:"log"`
}

type FitSection struct {
	Policy     string `koanf:"policy"` // sample|full
	SampleRows int    `koanf:"sample_rows"`
}

type EncoderSection struct {
	Kind  string `koanf:"kind"` // mode|standard
	Modes int    `koanf:"modes"`
}

type RegistrySection struct {
	Dir     string `koanf:"dir"`
	Persist bool   `koanf:"persist"`
}

type FetchSection struct {
	DriveBaseURL string    `koanf:"drive_base_url"`
	BackoffMS    int       `koanf:"backoff_ms"`
	S3           S3Section `koanf:"s3"`
}

type S3Section struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type ServerSection struct {
	HTTPAddr    string `koanf:"http_addr"`
	GRPCPort    int    `koanf:"grpc_port"`
	MetricsPort int    `koanf:"metrics_port"`
}

type KafkaSection struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
}

type LogSection struct {
	Level   string `koanf:"level"`
	JSON    bool   `koanf:"json"`
	Service string `koanf:"service"` // "service" attribute on every record
}
