// Package img2bag converts directories of still images into ROS 2 bags.
//
// Each directory is paired with an image topic. Files are ordered naturally (1.png, 2.png,
// 10.png), timestamped at a fixed rate from a shared start time and written, together with
// one sensor_msgs/msg/CameraInfo per topic, into an mcap or sqlite3 rosbag2 directory.
package img2bag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Version is reported by the command line tool. Release builds set it with -ldflags.
var Version = "0.1.0"

const (
	serializationFormat = "cdr"
	rosDistro           = "humble"
	metadataFileName    = "metadata.yaml"
	metadataVersion     = 5
	// offeredQoSProfiles is the YAML list rosbag2 records when no publisher offered a profile.
	offeredQoSProfiles = "[]"
)

// StorageID selects the rosbag2 storage plugin the bag is written with.
type StorageID string

const (
	StorageMCAP    StorageID = "mcap"
	StorageSQLite3 StorageID = "sqlite3"
)

// ParseStorageID accepts the storage identifiers case-insensitively.
func ParseStorageID(s string) (StorageID, error) {
	switch id := StorageID(strings.ToLower(strings.TrimSpace(s))); id {
	case StorageMCAP, StorageSQLite3:
		return id, nil
	default:
		return "", withKind(ErrConfiguration, errors.Errorf("unsupported storage format %q. Available formats: [mcap, sqlite3]", s))
	}
}

func (id StorageID) extension() string {
	if id == StorageSQLite3 {
		return ".db3"
	}
	return ".mcap"
}

// Topic describes one channel of the bag.
type Topic struct {
	Name                string `yaml:"name"`
	Type                string `yaml:"type"`
	SerializationFormat string `yaml:"serialization_format"`
	OfferedQoSProfiles  string `yaml:"offered_qos_profiles"`
}

func (topic *Topic) String() string {
	return fmt.Sprintf(`
name                 : %s
type                 : %s
serialization_format : %s
`, topic.Name, topic.Type, topic.SerializationFormat)
}

// NewTopic returns a cdr topic for the given message type.
func NewTopic(name, msgType string) Topic {
	return Topic{
		Name:                name,
		Type:                msgType,
		SerializationFormat: serializationFormat,
		OfferedQoSProfiles:  offeredQoSProfiles,
	}
}
