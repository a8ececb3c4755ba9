package img2bag

import (
	"bytes"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a conversion. Keys match the long command line flags with
// dashes replaced by underscores. JSON files are accepted as well, being valid YAML.
type Config struct {
	Directories     []string `yaml:"directories"`
	Topics          []string `yaml:"topics"`
	CameraInfoTopic string   `yaml:"camera_info_topic"`
	ImageSize       string   `yaml:"image_size"`
	// Timestamp is the start of the bag in seconds since the Unix epoch.
	Timestamp     float64  `yaml:"timestamp"`
	Rate          float64  `yaml:"rate"`
	RecursiveDirs bool     `yaml:"recursive_dirs"`
	Extensions    []string `yaml:"extensions"`
	Output        string   `yaml:"output"`
	Format        string   `yaml:"format"`
	Compression   string   `yaml:"compression"`
	Verbose       bool     `yaml:"verbose"`
}

// DefaultConfig starts the bag at the current second, at 1 Hz, in mcap.
func DefaultConfig() *Config {
	return &Config{
		CameraInfoTopic: DefaultCameraInfoTopic,
		Timestamp:       float64(time.Now().Unix()),
		Rate:            1,
		Format:          string(StorageMCAP),
		Compression:     "lz4",
	}
}

// LoadConfig overlays the file at path onto cfg. Unknown keys are rejected.
func LoadConfig(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return withKind(ErrConfiguration, errors.Wrap(err, "failed to read config file"))
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return withKind(ErrConfiguration, errors.Wrapf(err, "failed to parse %s", path))
	}
	return nil
}

// StartTime converts Timestamp to a time, rounded to the nanosecond.
func (cfg *Config) StartTime() time.Time {
	sec := math.Floor(cfg.Timestamp)
	nsec := math.Round((cfg.Timestamp - sec) * float64(time.Second))
	return time.Unix(int64(sec), int64(nsec))
}

// Converter builds a Converter from cfg.
func (cfg *Config) Converter() (*Converter, error) {
	pairs, err := PairDirectoriesWithTopics(cfg.Directories, cfg.Topics)
	if err != nil {
		return nil, err
	}

	storage, err := ParseStorageID(cfg.Format)
	if err != nil {
		return nil, err
	}

	if cfg.Timestamp < 0 || math.IsNaN(cfg.Timestamp) || math.IsInf(cfg.Timestamp, 0) {
		return nil, configErrorf("invalid timestamp %v: expected seconds since the Unix epoch", cfg.Timestamp)
	}

	c := NewConverter(pairs)
	c.StartTime = cfg.StartTime()
	c.Rate = cfg.Rate
	c.Recursive = cfg.RecursiveDirs
	c.Extensions = cfg.Extensions
	c.Storage = storage
	if cfg.CameraInfoTopic != "" {
		c.CameraInfoTopic = cfg.CameraInfoTopic
	}
	if cfg.ImageSize != "" {
		c.ImageSize, err = ParseImageSize(cfg.ImageSize)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Compression != "" {
		c.WriterOptions = append(c.WriterOptions, WithCompression(cfg.Compression))
	}

	return c, c.Validate()
}
