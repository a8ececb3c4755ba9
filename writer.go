package img2bag

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const defaultChunkSize = 4 * 1024 * 1024

// FrameWriter persists messages in the order they are handed over.
type FrameWriter interface {
	CreateTopic(topic Topic) error
	// Write serializes msg onto topic at timestamp, in nanoseconds since the Unix epoch.
	Write(topic string, timestamp int64, msg Message) error
	Close() error
}

// storage is one rosbag2 storage plugin. Topic ids start at 1.
type storage interface {
	createTopic(id uint16, topic Topic) error
	write(id uint16, sequence uint32, timestamp int64, data []byte) error
	close(m *Metadata) error
}

type topicState struct {
	id    uint16
	topic Topic
	count uint64
}

type writerOptions struct {
	chunkSize   int64
	compression string
}

// WriterOption configures Open.
type WriterOption func(*writerOptions)

// WithChunkSize sets the mcap chunk size in bytes.
func WithChunkSize(size int64) WriterOption {
	return func(opts *writerOptions) {
		opts.chunkSize = size
	}
}

// WithCompression selects the mcap chunk compression, "lz4" (default) or "none".
func WithCompression(compression string) WriterOption {
	return func(opts *writerOptions) {
		opts.compression = compression
	}
}

// Bag writes a rosbag2 directory: one storage file and metadata.yaml.
type Bag struct {
	uri      string
	id       StorageID
	fileName string
	storage  storage
	topics   map[string]*topicState
	order    []*topicState
	count    uint64
	start    int64
	end      int64
	closed   bool
}

// Open creates the bag directory uri. It fails if uri already exists.
func Open(uri string, id StorageID, opts ...WriterOption) (*Bag, error) {
	id, err := ParseStorageID(string(id))
	if err != nil {
		return nil, err
	}

	options := writerOptions{chunkSize: defaultChunkSize, compression: "lz4"}
	for _, opt := range opts {
		opt(&options)
	}
	if options.compression != "lz4" && options.compression != "none" {
		return nil, configErrorf("unsupported chunk compression %q. Available: [lz4, none]", options.compression)
	}

	uri, err = filepath.Abs(uri)
	if err != nil {
		return nil, withKind(ErrWrite, err)
	}
	if _, err := os.Stat(uri); err == nil {
		return nil, withKind(ErrWrite, errors.Errorf("output %s already exists", uri))
	}
	if err := os.MkdirAll(uri, 0o755); err != nil {
		return nil, withKind(ErrWrite, errors.Wrap(err, "failed to create bag directory"))
	}

	fileName := filepath.Base(uri) + "_0" + id.extension()
	path := filepath.Join(uri, fileName)

	var s storage
	switch id {
	case StorageSQLite3:
		s, err = openSQLite(path)
	default:
		s, err = openMCAP(path, options)
	}
	if err != nil {
		return nil, withKind(ErrWrite, errors.Wrapf(err, "failed to open %s", path))
	}

	return &Bag{
		uri:      uri,
		id:       id,
		fileName: fileName,
		storage:  s,
		topics:   make(map[string]*topicState),
	}, nil
}

// URI returns the absolute path of the bag directory.
func (bag *Bag) URI() string {
	return bag.uri
}

// CreateTopic registers topic. Registering the same topic twice is a no-op.
func (bag *Bag) CreateTopic(topic Topic) error {
	if bag.closed {
		return withKind(ErrWrite, errClosed)
	}
	if existing, ok := bag.topics[topic.Name]; ok {
		if existing.topic.Type != topic.Type {
			return withKind(ErrWrite, errors.Errorf("topic %s already registered with type %s", topic.Name, existing.topic.Type))
		}
		return nil
	}
	if topic.SerializationFormat == "" {
		topic.SerializationFormat = serializationFormat
	}

	state := &topicState{id: uint16(len(bag.order) + 1), topic: topic}
	if err := bag.storage.createTopic(state.id, topic); err != nil {
		return withKind(ErrWrite, errors.Wrapf(err, "failed to create topic %s", topic.Name))
	}

	bag.topics[topic.Name] = state
	bag.order = append(bag.order, state)
	return nil
}

func (bag *Bag) Write(topic string, timestamp int64, msg Message) error {
	if bag.closed {
		return withKind(ErrWrite, errClosed)
	}

	state, ok := bag.topics[topic]
	if !ok {
		return withKind(ErrWrite, errors.Wrap(errUnknownTopic, topic))
	}
	if msg.MessageType() != state.topic.Type {
		return withKind(ErrWrite, errors.Errorf("topic %s carries %s, got %s", topic, state.topic.Type, msg.MessageType()))
	}
	if timestamp < 0 {
		return withKind(ErrWrite, errors.Errorf("timestamp %d is before the Unix epoch", timestamp))
	}

	data, err := Marshal(msg)
	if err != nil {
		return withKind(ErrWrite, err)
	}

	if err := bag.storage.write(state.id, uint32(state.count), timestamp, data); err != nil {
		return withKind(ErrWrite, errors.Wrapf(err, "failed to write to %s", topic))
	}

	if bag.count == 0 || timestamp < bag.start {
		bag.start = timestamp
	}
	if bag.count == 0 || timestamp > bag.end {
		bag.end = timestamp
	}
	state.count++
	bag.count++
	return nil
}

// Metadata describes what has been written so far.
func (bag *Bag) Metadata() *Metadata {
	info := BagInfo{
		Version:           metadataVersion,
		StorageIdentifier: bag.id,
		Duration:          Duration{Nanoseconds: bag.end - bag.start},
		StartingTime:      Timestamp{NanosecondsSinceEpoch: bag.start},
		MessageCount:      bag.count,
		RelativeFilePaths: []string{bag.fileName},
		Files: []FileInformation{{
			Path:         bag.fileName,
			StartingTime: Timestamp{NanosecondsSinceEpoch: bag.start},
			Duration:     Duration{Nanoseconds: bag.end - bag.start},
			MessageCount: bag.count,
		}},
	}

	for _, state := range bag.order {
		info.Topics = append(info.Topics, TopicMessageCount{Topic: state.topic, MessageCount: state.count})
	}

	return &Metadata{Info: info}
}

// Close flushes the storage file and writes metadata.yaml. A partially written bag is left
// as is on error.
func (bag *Bag) Close() error {
	if bag.closed {
		return nil
	}
	bag.closed = true

	m := bag.Metadata()
	err := multierr.Append(bag.storage.close(m), writeMetadata(bag.uri, m))
	if err != nil {
		return withKind(ErrWrite, errors.Wrapf(err, "failed to close %s", bag.uri))
	}
	return nil
}
