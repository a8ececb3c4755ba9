package img2bag

import (
	"errors"
	"io"

	"github.com/foxglove/mcap/go/mcap"
)

var (
	errNotFoundConnectionHeader = errors.New("message refers to an unknown channel")
	errNotFoundSchema           = errors.New("channel refers to an unknown schema")
)

// BagMessage is one message read back from an mcap bag.
type BagMessage struct {
	Topic     *Topic
	Sequence  uint32
	Timestamp int64
	Data      []byte
}

// UnmarshallTo deserializes the message into msg. The type of msg must match the topic.
func (message *BagMessage) UnmarshallTo(msg Message) error {
	if msg.MessageType() != message.Topic.Type {
		return errUnknownMsgType
	}
	return Unmarshal(message.Data, msg)
}

// Decoder reads the messages of an mcap bag in file order.
type Decoder struct {
	lexer   *mcap.Lexer
	buf     []byte
	schemas map[uint16]*mcap.Schema
	conns   map[uint16]*Topic
	// Metadata holds the rosbag2 metadata record once it has been read.
	Metadata map[string]string
}

func NewDecoder(r io.Reader) (*Decoder, error) {
	lexer, err := mcap.NewLexer(r, &mcap.LexerOptions{})
	if err != nil {
		return nil, err
	}

	return &Decoder{
		lexer:   lexer,
		schemas: make(map[uint16]*mcap.Schema),
		conns:   make(map[uint16]*Topic),
	}, nil
}

// Read returns the next message. When it reaches the footer, Read returns io.EOF.
func (decoder *Decoder) Read() (*BagMessage, error) {
	for {
		token, record, err := decoder.lexer.Next(decoder.buf)
		if err != nil {
			return nil, err
		}
		if cap(record) > cap(decoder.buf) {
			decoder.buf = record
		}

		switch token {
		case mcap.TokenSchema:
			if err := decoder.handleSchema(record); err != nil {
				return nil, err
			}
		case mcap.TokenChannel:
			if err := decoder.handleChannel(record); err != nil {
				return nil, err
			}
		case mcap.TokenMetadata:
			metadata, err := mcap.ParseMetadata(record)
			if err != nil {
				return nil, err
			}
			if metadata.Name == mcapMetadataName {
				decoder.Metadata = metadata.Metadata
			}
		case mcap.TokenMessage:
			return decoder.handleMessage(record)
		case mcap.TokenFooter:
			return nil, io.EOF
		}
	}
}

func (decoder *Decoder) handleSchema(record []byte) error {
	schema, err := mcap.ParseSchema(record)
	if err != nil {
		return err
	}

	decoder.schemas[schema.ID] = schema
	return nil
}

func (decoder *Decoder) handleChannel(record []byte) error {
	channel, err := mcap.ParseChannel(record)
	if err != nil {
		return err
	}

	schema, ok := decoder.schemas[channel.SchemaID]
	if !ok {
		return errNotFoundSchema
	}

	decoder.conns[channel.ID] = &Topic{
		Name:                channel.Topic,
		Type:                schema.Name,
		SerializationFormat: channel.MessageEncoding,
		OfferedQoSProfiles:  channel.Metadata["offered_qos_profiles"],
	}
	return nil
}

func (decoder *Decoder) handleMessage(record []byte) (*BagMessage, error) {
	msg, err := mcap.ParseMessage(record)
	if err != nil {
		return nil, err
	}

	topic, ok := decoder.conns[msg.ChannelID]
	if !ok {
		return nil, errNotFoundConnectionHeader
	}

	// the record buffer is reused by the next Read
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)

	return &BagMessage{
		Topic:     topic,
		Sequence:  msg.Sequence,
		Timestamp: int64(msg.LogTime),
		Data:      data,
	}, nil
}
