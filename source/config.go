package source

import (
	"net/http"
	"time"

	"numflow/internal/spec"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type Config struct {
	Dir        string        // download directory
	MaxRetries int           // attempts per fetch, >= 1
	Backoff    time.Duration // pause between attempts, 0 = none

	DriveBaseURL string
	HTTPClient   *http.Client
	S3           S3Config
}

// ConfigFrom maps the service configuration onto the fetcher.
func ConfigFrom(f spec.File) Config {
	return Config{
		Dir:          f.DownloadDir,
		MaxRetries:   f.MaxRetries,
		Backoff:      time.Duration(f.Fetch.BackoffMS) * time.Millisecond,
		DriveBaseURL: f.Fetch.DriveBaseURL,
		S3: S3Config{
			Endpoint:  f.Fetch.S3.Endpoint,
			AccessKey: f.Fetch.S3.AccessKey,
			SecretKey: f.Fetch.S3.SecretKey,
			UseSSL:    f.Fetch.S3.UseSSL,
		},
	}
}

func applyDefaults(c *Config) {
	if c.Dir == "" {
		c.Dir = "downloads"
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 3
	}
	if c.DriveBaseURL == "" {
		c.DriveBaseURL = "https://drive.google.com"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
}
