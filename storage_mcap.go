package img2bag

import (
	"bufio"
	"os"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	mcapProfile        = "ros2"
	mcapLibrary        = "go-img2bag"
	mcapSchemaEncoding = "ros2msg"
	mcapMetadataName   = "rosbag2"
)

type mcapStorage struct {
	f       *os.File
	buf     *bufio.Writer
	writer  *mcap.Writer
	schemas map[string]uint16
}

// newLZ4Compressor returns the chunk compressor. Chunks are written once and read many
// times, so it trades encoding speed for ratio.
func newLZ4Compressor() (*lz4.Writer, error) {
	w := lz4.NewWriter(nil)
	if err := w.Apply(lz4.CompressionLevelOption(lz4.Level5), lz4.ChecksumOption(false)); err != nil {
		return nil, err
	}
	return w, nil
}

func openMCAP(path string, options writerOptions) (*mcapStorage, error) {
	opts := &mcap.WriterOptions{
		IncludeCRC:  true,
		Chunked:     true,
		ChunkSize:   options.chunkSize,
		Compression: mcap.CompressionNone,
	}
	if options.compression == "lz4" {
		compressor, err := newLZ4Compressor()
		if err != nil {
			return nil, err
		}
		opts.Compression = mcap.CompressionLZ4
		opts.Compressor = mcap.NewCustomCompressor(mcap.CompressionLZ4, compressor)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(f)
	writer, err := mcap.NewWriter(buf, opts)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	if err := writer.WriteHeader(&mcap.Header{Profile: mcapProfile, Library: mcapLibrary}); err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	return &mcapStorage{
		f:       f,
		buf:     buf,
		writer:  writer,
		schemas: make(map[string]uint16),
	}, nil
}

func (s *mcapStorage) createTopic(id uint16, topic Topic) error {
	schemaID, ok := s.schemas[topic.Type]
	if !ok {
		text, ok := DefinitionText(topic.Type)
		if !ok {
			return errors.Wrap(errUnknownMsgType, topic.Type)
		}

		schemaID = uint16(len(s.schemas) + 1)
		err := s.writer.WriteSchema(&mcap.Schema{
			ID:       schemaID,
			Name:     topic.Type,
			Encoding: mcapSchemaEncoding,
			Data:     []byte(text),
		})
		if err != nil {
			return err
		}
		s.schemas[topic.Type] = schemaID
	}

	return s.writer.WriteChannel(&mcap.Channel{
		ID:              id,
		SchemaID:        schemaID,
		Topic:           topic.Name,
		MessageEncoding: topic.SerializationFormat,
		Metadata: map[string]string{
			"offered_qos_profiles": topic.OfferedQoSProfiles,
		},
	})
}

func (s *mcapStorage) write(id uint16, sequence uint32, timestamp int64, data []byte) error {
	return s.writer.WriteMessage(&mcap.Message{
		ChannelID:   id,
		Sequence:    sequence,
		LogTime:     uint64(timestamp),
		PublishTime: uint64(timestamp),
		Data:        data,
	})
}

func (s *mcapStorage) close(m *Metadata) error {
	var err error
	if b, merr := m.marshal(); merr != nil {
		err = merr
	} else {
		err = s.writer.WriteMetadata(&mcap.Metadata{
			Name:     mcapMetadataName,
			Metadata: map[string]string{"serialized_metadata": string(b)},
		})
	}

	err = multierr.Append(err, s.writer.Close())
	err = multierr.Append(err, s.buf.Flush())
	return multierr.Append(err, s.f.Close())
}
