package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"
)

// Service names, each stored as {name}.yaml in a context.
const (
	ServiceStorage  = "storage"
	ServiceAssets   = "assets"
	ServiceRecorder = "recorder"
)

// Storage backends.
const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// StorageConfig is storage.yaml: where recordings are uploaded.
type StorageConfig struct {
	// Backend is "s3" (default) or "local".
	Backend string `yaml:"backend,omitempty"`

	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`

	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`

	// PathStyle addresses the bucket as endpoint/bucket, for MinIO and
	// similar servers.
	PathStyle bool `yaml:"path_style,omitempty"`

	// PublicBaseURL makes download URLs unsigned: {public_base_url}/{key}.
	PublicBaseURL string `yaml:"public_base_url,omitempty"`

	// PresignTTL is a Go duration such as "24h". Empty uses the default.
	PresignTTL string `yaml:"presign_ttl,omitempty"`

	// LocalDir is the root directory of the local backend.
	LocalDir string `yaml:"local_dir,omitempty"`
}

// ApplyEnv fills empty credential and endpoint fields from the standard AWS
// environment variables.
func (c *StorageConfig) ApplyEnv(getenv func(string) string) {
	fill := func(dst *string, keys ...string) {
		for _, k := range keys {
			if *dst != "" {
				return
			}
			*dst = getenv(k)
		}
	}
	fill(&c.AccessKeyID, "AWS_ACCESS_KEY_ID")
	fill(&c.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	fill(&c.SessionToken, "AWS_SESSION_TOKEN")
	fill(&c.Region, "AWS_REGION", "AWS_DEFAULT_REGION")
	fill(&c.Endpoint, "AWS_ENDPOINT_URL_S3", "AWS_ENDPOINT_URL")
}

// BackendName returns the backend with the default applied.
func (c *StorageConfig) BackendName() string {
	if c.Backend == "" {
		return BackendS3
	}
	return c.Backend
}

// PresignDuration parses PresignTTL. Zero means the default.
func (c *StorageConfig) PresignDuration() (time.Duration, error) {
	if c.PresignTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.PresignTTL)
	if err != nil {
		return 0, fmt.Errorf("storage: invalid presign_ttl %q: %w", c.PresignTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("storage: presign_ttl must be positive, got %s", d)
	}
	return d, nil
}

// Validate checks the fields required by the selected backend.
func (c *StorageConfig) Validate() error {
	switch c.BackendName() {
	case BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("storage: bucket is required for the s3 backend")
		}
		if c.Region == "" {
			return fmt.Errorf("storage: region is required for the s3 backend")
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			return fmt.Errorf("storage: access_key_id and secret_access_key must be set together")
		}
	case BackendLocal:
		if c.LocalDir == "" {
			return fmt.Errorf("storage: local_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q (want %s or %s)", c.Backend, BackendS3, BackendLocal)
	}
	_, err := c.PresignDuration()
	return err
}

// AssetsConfig is assets.yaml: where reference samples are found.
// Relative paths are resolved against the context directory.
type AssetsConfig struct {
	// Catalog is a YAML file mapping phrases to sample files.
	Catalog string `yaml:"catalog,omitempty"`

	// SampleDir holds {phrase}.wav files. Used when Catalog is empty.
	SampleDir string `yaml:"sample_dir,omitempty"`
}

// Validate requires one of Catalog or SampleDir.
func (c *AssetsConfig) Validate() error {
	if c.Catalog == "" && c.SampleDir == "" {
		return fmt.Errorf("assets: catalog or sample_dir is required")
	}
	return nil
}

// Resolve makes relative paths absolute against base.
func (c *AssetsConfig) Resolve(base string) AssetsConfig {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	return AssetsConfig{Catalog: abs(c.Catalog), SampleDir: abs(c.SampleDir)}
}

// Recorder defaults.
const (
	DefaultRecordSeconds = 3
	DefaultSampleRate    = 16000
)

var sampleRates = []int{8000, 16000, 22050, 24000, 44100, 48000}

// RecorderConfig is recorder.yaml.
type RecorderConfig struct {
	// Duration is the countdown length in seconds.
	Duration int `yaml:"duration,omitempty"`

	// SampleRate of the mono 16-bit capture.
	SampleRate int `yaml:"sample_rate,omitempty"`
}

// WithDefaults returns c with zero fields defaulted.
func (c RecorderConfig) WithDefaults() RecorderConfig {
	if c.Duration == 0 {
		c.Duration = DefaultRecordSeconds
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// Validate checks ranges. Zero fields are allowed and mean the default.
func (c *RecorderConfig) Validate() error {
	if c.Duration < 0 || c.Duration > 60 {
		return fmt.Errorf("recorder: duration must be between 1 and 60 seconds, got %d", c.Duration)
	}
	if c.SampleRate != 0 && !slices.Contains(sampleRates, c.SampleRate) {
		return fmt.Errorf("recorder: unsupported sample_rate %d", c.SampleRate)
	}
	return nil
}
