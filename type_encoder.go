package img2bag

import (
	"math"
	"reflect"

	"github.com/pkg/errors"
)

const initialMessageSize = 4096

type fieldEncodeFunc func(enc *cdrEncoder, v reflect.Value) bool

var fieldEncodeHelper = map[MessageFieldType]fieldEncodeFunc{
	MessageFieldTypeBool:    fieldEncodeBool,
	MessageFieldTypeInt8:    fieldEncodeInt,
	MessageFieldTypeUint8:   fieldEncodeUint,
	MessageFieldTypeInt16:   fieldEncodeInt,
	MessageFieldTypeUint16:  fieldEncodeUint,
	MessageFieldTypeInt32:   fieldEncodeInt,
	MessageFieldTypeUint32:  fieldEncodeUint,
	MessageFieldTypeInt64:   fieldEncodeInt,
	MessageFieldTypeUint64:  fieldEncodeUint,
	MessageFieldTypeFloat32: fieldEncodeFloat,
	MessageFieldTypeFloat64: fieldEncodeFloat,
	MessageFieldTypeString:  fieldEncodeString,
}

// cdrEncoder appends a CDR stream. Alignment is relative to the end of the encapsulation
// header.
type cdrEncoder struct {
	buf []byte
	// fieldType is the primitive being written, it decides the width of integers
	fieldType MessageFieldType
}

func newCDREncoder(size int) *cdrEncoder {
	buf := make([]byte, len(encapsulation), size)
	copy(buf, encapsulation[:])
	return &cdrEncoder{buf: buf}
}

func (enc *cdrEncoder) bytes() []byte {
	return enc.buf
}

func (enc *cdrEncoder) align(n int) {
	for (len(enc.buf)-len(encapsulation))%n != 0 {
		enc.buf = append(enc.buf, 0)
	}
}

func (enc *cdrEncoder) putUint(v uint64, size int) {
	enc.align(size)

	var b [8]byte
	switch size {
	case 1:
		b[0] = uint8(v)
	case 2:
		endian.PutUint16(b[:], uint16(v))
	case 4:
		endian.PutUint32(b[:], uint32(v))
	default:
		endian.PutUint64(b[:], v)
	}
	enc.buf = append(enc.buf, b[:size]...)
}

func (enc *cdrEncoder) putLength(n int) {
	enc.putUint(uint64(n), 4)
}

func fieldEncodeBool(enc *cdrEncoder, v reflect.Value) bool {
	if v.Kind() != reflect.Bool {
		return false
	}

	var b uint64
	if v.Bool() {
		b = 1
	}
	enc.putUint(b, 1)
	return true
}

func fieldEncodeInt(enc *cdrEncoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return false
	}

	enc.putUint(uint64(v.Int()), messageFieldTypeSize[enc.fieldType])
	return true
}

func fieldEncodeUint(enc *cdrEncoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return false
	}

	enc.putUint(v.Uint(), messageFieldTypeSize[enc.fieldType])
	return true
}

func fieldEncodeFloat(enc *cdrEncoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return false
	}

	if enc.fieldType == MessageFieldTypeFloat32 {
		enc.putUint(uint64(math.Float32bits(float32(v.Float()))), 4)
	} else {
		enc.putUint(math.Float64bits(v.Float()), 8)
	}
	return true
}

// fieldEncodeString writes the length including the terminating NUL, then the bytes.
func fieldEncodeString(enc *cdrEncoder, v reflect.Value) bool {
	if v.Kind() != reflect.String {
		return false
	}

	s := v.String()
	enc.putLength(len(s) + 1)
	enc.buf = append(enc.buf, s...)
	enc.buf = append(enc.buf, 0)
	return true
}

func createFieldMapper(structValue reflect.Value, mapper map[string]reflect.Value) {
	structType := structValue.Type()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.PkgPath != "" {
			continue
		}

		fieldName, ok := field.Tag.Lookup(rosbagStructTag)
		if !ok {
			fieldName = field.Name
		}

		mapper[fieldName] = structValue.Field(i)
	}
}

func (enc *cdrEncoder) encodeMessageData(def *MessageDefinition, data interface{}) error {
	value := reflect.ValueOf(data)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return errInvalidDataType
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		return errInvalidDataType
	}

	return enc.encodeStruct(def, value)
}

func (enc *cdrEncoder) encodeStruct(def *MessageDefinition, value reflect.Value) error {
	mapper := make(map[string]reflect.Value)
	createFieldMapper(value, mapper)

	for _, field := range def.Fields {
		// constants are part of the definition, not the payload
		if field.Value != nil {
			continue
		}

		fieldValue, ok := mapper[field.Name]
		if !ok {
			return errors.Errorf("%s has no struct field for message field %s", value.Type(), field.Name)
		}

		var err error
		if field.IsArray {
			err = enc.encodeArray(field, fieldValue)
		} else {
			err = enc.encodeField(field, fieldValue)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (enc *cdrEncoder) encodeArray(field *MessageFieldDefinition, value reflect.Value) error {
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return errors.Errorf("message field %s is an array, but the struct field is %s", field.Name, value.Kind())
	}

	length := value.Len()
	if field.ArraySize >= 0 {
		if length != field.ArraySize {
			return errors.Errorf("message field %s holds %d elements, got %d", field.Name, field.ArraySize, length)
		}
	} else {
		enc.putLength(length)
	}

	// byte sequences are copied as is
	if field.Type == MessageFieldTypeUint8 && value.Kind() == reflect.Slice && value.Type().Elem().Kind() == reflect.Uint8 {
		enc.buf = append(enc.buf, value.Bytes()...)
		return nil
	}

	for i := 0; i < length; i++ {
		if err := enc.encodeField(field, value.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (enc *cdrEncoder) encodeField(field *MessageFieldDefinition, value reflect.Value) error {
	if field.Type == MessageFieldTypeComplex {
		if value.Kind() != reflect.Struct {
			return errors.Errorf("message field %s is a message, but the struct field is %s", field.Name, value.Kind())
		}
		return enc.encodeStruct(field.MsgType, value)
	}

	enc.fieldType = field.Type
	if !fieldEncodeHelper[field.Type](enc, value) {
		return errors.Wrapf(errInvalidFormat, "message field %s cannot hold a %s", field.Name, value.Kind())
	}
	return nil
}
