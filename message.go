package img2bag

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	rosbagStructTag = "rosbag"
	msgSeparator    = "================================================================================"
)

type MessageFieldType uint8

const (
	MessageFieldTypeBool MessageFieldType = iota + 1
	MessageFieldTypeInt8
	MessageFieldTypeUint8
	MessageFieldTypeInt16
	MessageFieldTypeUint16
	MessageFieldTypeInt32
	MessageFieldTypeUint32
	MessageFieldTypeInt64
	MessageFieldTypeUint64
	MessageFieldTypeFloat32
	MessageFieldTypeFloat64
	MessageFieldTypeString
	MessageFieldTypeComplex
)

var (
	messageFieldTypeMap = map[string]MessageFieldType{
		"bool":    MessageFieldTypeBool,
		"byte":    MessageFieldTypeUint8,
		"char":    MessageFieldTypeUint8,
		"int8":    MessageFieldTypeInt8,
		"uint8":   MessageFieldTypeUint8,
		"int16":   MessageFieldTypeInt16,
		"uint16":  MessageFieldTypeUint16,
		"int32":   MessageFieldTypeInt32,
		"uint32":  MessageFieldTypeUint32,
		"int64":   MessageFieldTypeInt64,
		"uint64":  MessageFieldTypeUint64,
		"float32": MessageFieldTypeFloat32,
		"float64": MessageFieldTypeFloat64,
		"string":  MessageFieldTypeString,
	}

	// alignment of each primitive in a CDR stream
	messageFieldTypeSize = map[MessageFieldType]int{
		MessageFieldTypeBool:    1,
		MessageFieldTypeInt8:    1,
		MessageFieldTypeUint8:   1,
		MessageFieldTypeInt16:   2,
		MessageFieldTypeUint16:  2,
		MessageFieldTypeInt32:   4,
		MessageFieldTypeUint32:  4,
		MessageFieldTypeInt64:   8,
		MessageFieldTypeUint64:  8,
		MessageFieldTypeFloat32: 4,
		MessageFieldTypeFloat64: 8,
		MessageFieldTypeString:  4,
	}
)

// MessageDefinition is a parsed ROS .msg definition, http://wiki.ros.org/msg
type MessageDefinition struct {
	Type   string
	Fields []*MessageFieldDefinition
}

type MessageFieldDefinition struct {
	Type    MessageFieldType
	Name    string
	IsArray bool
	// ArraySize is only used when the field is a fixed-size array. If it's a sequence, ArraySize is -1
	ArraySize int
	// Value is only set for constants. Constants are not serialized.
	Value interface{}
	// MsgType is only set when the type is complex.
	MsgType *MessageDefinition
}

// decodeConstValue decodes raw to concrete type. Raw is expected to be in ASCII.
func decodeConstValue(fieldType MessageFieldType, raw []byte) (interface{}, error) {
	rawStr := string(raw)

	switch fieldType {
	case MessageFieldTypeBool:
		v, err := strconv.ParseBool(rawStr)
		return v, err
	case MessageFieldTypeInt8:
		v, err := strconv.ParseInt(rawStr, 10, 8)
		return int8(v), err
	case MessageFieldTypeUint8:
		v, err := strconv.ParseUint(rawStr, 10, 8)
		return uint8(v), err
	case MessageFieldTypeInt16:
		v, err := strconv.ParseInt(rawStr, 10, 16)
		return int16(v), err
	case MessageFieldTypeUint16:
		v, err := strconv.ParseUint(rawStr, 10, 16)
		return uint16(v), err
	case MessageFieldTypeInt32:
		v, err := strconv.ParseInt(rawStr, 10, 32)
		return int32(v), err
	case MessageFieldTypeUint32:
		v, err := strconv.ParseUint(rawStr, 10, 32)
		return uint32(v), err
	case MessageFieldTypeInt64:
		return strconv.ParseInt(rawStr, 10, 64)
	case MessageFieldTypeUint64:
		return strconv.ParseUint(rawStr, 10, 64)
	case MessageFieldTypeFloat32:
		v, err := strconv.ParseFloat(rawStr, 32)
		return float32(v), err
	case MessageFieldTypeFloat64:
		return strconv.ParseFloat(rawStr, 64)
	case MessageFieldTypeString:
		return rawStr, nil
	default:
		return nil, errInvalidConstType
	}
}

// ParseMessageDefinition parses the full text of a message definition, including the
// "MSG:" sections of the types it depends on.
func ParseMessageDefinition(msgType string, b []byte) (*MessageDefinition, error) {
	def := &MessageDefinition{Type: msgType}
	if err := def.unmarshall(b); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", msgType)
	}
	return def, nil
}

func (def *MessageDefinition) unmarshall(b []byte) error {
	lines := bytes.Split(b, []byte("\n"))
	unresolvedFields := make(map[*MessageFieldDefinition]string)
	complexMsgs := []*MessageDefinition{def}

	for _, line := range lines {
		// string constants keep their '#', everything else drops trailing comments
		if idx := bytes.IndexByte(line, '#'); idx != -1 && !isStringConst(line[:idx]) {
			line = line[:idx]
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '=' {
			continue
		}

		if bytes.HasPrefix(line, []byte("MSG:")) {
			msgType := string(bytes.TrimSpace(line[len("MSG:"):]))
			complexMsgs = append(complexMsgs, &MessageDefinition{Type: msgType})
			continue
		}

		parts := bytes.Fields(line)
		if len(parts) < 2 {
			return errInvalidFormat
		}
		fieldType := string(parts[0])
		rest := bytes.TrimSpace(line[len(parts[0]):])

		isArray := false
		arraySize := -1
		if idx := strings.IndexByte(fieldType, '['); idx != -1 {
			end := strings.IndexByte(fieldType[idx:], ']')
			if end == -1 {
				return errInvalidFormat
			}
			if end > 1 {
				var err error
				arraySize, err = strconv.Atoi(fieldType[idx+1 : idx+end])
				if err != nil {
					return err
				}
			}
			fieldType = fieldType[:idx]
			isArray = true
		}

		msgFieldType, ok := messageFieldTypeMap[fieldType]
		if !ok {
			msgFieldType = MessageFieldTypeComplex
		}

		fieldName := rest
		var constantValue interface{}
		if idx := bytes.IndexByte(rest, '='); idx != -1 {
			var err error
			constantValue, err = decodeConstValue(msgFieldType, bytes.TrimSpace(rest[idx+1:]))
			if err != nil {
				return err
			}
			fieldName = bytes.TrimSpace(rest[:idx])
		} else if fields := bytes.Fields(rest); len(fields) > 1 {
			// ROS 2 default value, only the name matters for serialization
			fieldName = fields[0]
		}

		fieldDef := &MessageFieldDefinition{
			Type:      msgFieldType,
			Name:      string(fieldName),
			IsArray:   isArray,
			ArraySize: arraySize,
			Value:     constantValue,
		}

		if fieldDef.Type == MessageFieldTypeComplex {
			unresolvedFields[fieldDef] = fieldType
		}
		complexMsg := complexMsgs[len(complexMsgs)-1]
		complexMsg.Fields = append(complexMsg.Fields, fieldDef)
	}

	for field, msgType := range unresolvedFields {
		msgDef := findComplexMsg(complexMsgs, msgType)
		if msgDef == nil {
			return errors.Wrap(errUnresolvedMsgType, msgType)
		}

		field.MsgType = msgDef
	}

	return nil
}

func isStringConst(line []byte) bool {
	fields := bytes.Fields(line)
	return len(fields) > 1 && string(fields[0]) == "string" && bytes.IndexByte(line, '=') != -1
}

// findComplexMsg iterates complexMsgs, and find for msgType. msgType can have an optional
// package name as prefix, and ROS 2 names may carry a "/msg/" infix the reference lacks.
func findComplexMsg(complexMsgs []*MessageDefinition, msgType string) *MessageDefinition {
	msgType = strings.Replace(msgType, "/msg/", "/", 1)
	for _, cur := range complexMsgs[1:] {
		curType := strings.Replace(cur.Type, "/msg/", "/", 1)
		if curType == msgType || strings.HasSuffix(curType, "/"+msgType) {
			return cur
		}
	}
	return nil
}

// Message is a ROS 2 message this package knows the definition of.
type Message interface {
	// MessageType returns the full type name, e.g. sensor_msgs/msg/Image.
	MessageType() string
}

var (
	definitionsMu sync.Mutex
	definitions   = map[string]*MessageDefinition{}
)

// LookupDefinition returns the parsed definition of a registered message type.
func LookupDefinition(msgType string) (*MessageDefinition, error) {
	definitionsMu.Lock()
	defer definitionsMu.Unlock()

	if def, ok := definitions[msgType]; ok {
		return def, nil
	}

	text, ok := definitionTexts[msgType]
	if !ok {
		return nil, errors.Wrap(errUnknownMsgType, msgType)
	}

	def, err := ParseMessageDefinition(msgType, []byte(text))
	if err != nil {
		return nil, err
	}

	definitions[msgType] = def
	return def, nil
}

// DefinitionText returns the .msg text of a registered message type.
func DefinitionText(msgType string) (string, bool) {
	text, ok := definitionTexts[msgType]
	return text, ok
}

// Marshal serializes msg to CDR.
func Marshal(msg Message) ([]byte, error) {
	def, err := LookupDefinition(msg.MessageType())
	if err != nil {
		return nil, err
	}

	enc := newCDREncoder(initialMessageSize)
	if err := enc.encodeMessageData(def, msg); err != nil {
		return nil, errors.Wrapf(err, "failed to serialize %s", msg.MessageType())
	}
	return enc.bytes(), nil
}

// Unmarshal deserializes CDR data into msg, which must be a pointer to a struct.
func Unmarshal(data []byte, msg Message) error {
	def, err := LookupDefinition(msg.MessageType())
	if err != nil {
		return err
	}

	dec, err := newCDRDecoder(data)
	if err != nil {
		return err
	}
	if err := dec.decodeMessageData(def, msg); err != nil {
		return errors.Wrapf(err, "failed to deserialize %s", msg.MessageType())
	}
	return nil
}
