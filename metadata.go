package img2bag

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Metadata is the content of a rosbag2 metadata.yaml.
type Metadata struct {
	Info BagInfo `yaml:"rosbag2_bagfile_information"`
}

type BagInfo struct {
	Version           int                 `yaml:"version"`
	StorageIdentifier StorageID           `yaml:"storage_identifier"`
	Duration          Duration            `yaml:"duration"`
	StartingTime      Timestamp           `yaml:"starting_time"`
	MessageCount      uint64              `yaml:"message_count"`
	Topics            []TopicMessageCount `yaml:"topics_with_message_count"`
	CompressionFormat string              `yaml:"compression_format"`
	CompressionMode   string              `yaml:"compression_mode"`
	RelativeFilePaths []string            `yaml:"relative_file_paths"`
	Files             []FileInformation   `yaml:"files"`
}

type Duration struct {
	Nanoseconds int64 `yaml:"nanoseconds"`
}

type Timestamp struct {
	NanosecondsSinceEpoch int64 `yaml:"nanoseconds_since_epoch"`
}

type TopicMessageCount struct {
	Topic        Topic  `yaml:"topic_metadata"`
	MessageCount uint64 `yaml:"message_count"`
}

type FileInformation struct {
	Path         string    `yaml:"path"`
	StartingTime Timestamp `yaml:"starting_time"`
	Duration     Duration  `yaml:"duration"`
	MessageCount uint64    `yaml:"message_count"`
}

// Start returns the timestamp of the earliest message.
func (info *BagInfo) Start() time.Time {
	return time.Unix(0, info.StartingTime.NanosecondsSinceEpoch)
}

// End returns the timestamp of the latest message.
func (info *BagInfo) End() time.Time {
	return info.Start().Add(time.Duration(info.Duration.Nanoseconds))
}

func (m *Metadata) marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

func writeMetadata(dir string, m *Metadata) error {
	b, err := m.marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataFileName), b, 0o644)
}

// ReadMetadata reads the metadata.yaml of the bag directory uri.
func ReadMetadata(uri string) (*Metadata, error) {
	b, err := os.ReadFile(filepath.Join(uri, metadataFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bag metadata")
	}

	var m Metadata
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", metadataFileName)
	}
	return &m, nil
}
