package img2bag

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

var byteType = reflect.TypeOf(byte(0))

type fieldDecodeFunc func(dec *cdrDecoder, v reflect.Value) (ok bool)

var fieldDecodeHelper = map[MessageFieldType]fieldDecodeFunc{
	MessageFieldTypeBool:    fieldDecodeBool,
	MessageFieldTypeInt8:    fieldDecodeInt,
	MessageFieldTypeUint8:   fieldDecodeUint,
	MessageFieldTypeInt16:   fieldDecodeInt,
	MessageFieldTypeUint16:  fieldDecodeUint,
	MessageFieldTypeInt32:   fieldDecodeInt,
	MessageFieldTypeUint32:  fieldDecodeUint,
	MessageFieldTypeInt64:   fieldDecodeInt,
	MessageFieldTypeUint64:  fieldDecodeUint,
	MessageFieldTypeFloat32: fieldDecodeFloat,
	MessageFieldTypeFloat64: fieldDecodeFloat,
	MessageFieldTypeString:  fieldDecodeString,
}

// cdrDecoder reads a CDR stream in the byte order announced by its encapsulation header.
type cdrDecoder struct {
	raw       []byte
	off       int
	order     binary.ByteOrder
	fieldType MessageFieldType
}

func newCDRDecoder(data []byte) (*cdrDecoder, error) {
	if len(data) < len(encapsulation) {
		return nil, errInvalidFormat
	}

	var order binary.ByteOrder = binary.BigEndian
	if data[1]&0x01 != 0 {
		order = binary.LittleEndian
	}

	return &cdrDecoder{raw: data[len(encapsulation):], order: order}, nil
}

func (dec *cdrDecoder) align(n int) {
	if rem := dec.off % n; rem != 0 {
		dec.off += n - rem
	}
}

func (dec *cdrDecoder) next(n int) ([]byte, bool) {
	if n < 0 || dec.off+n > len(dec.raw) {
		return nil, false
	}

	b := dec.raw[dec.off : dec.off+n]
	dec.off += n
	return b, true
}

func (dec *cdrDecoder) uint(size int) (uint64, bool) {
	dec.align(size)
	b, ok := dec.next(size)
	if !ok {
		return 0, false
	}

	switch size {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(dec.order.Uint16(b)), true
	case 4:
		return uint64(dec.order.Uint32(b)), true
	default:
		return dec.order.Uint64(b), true
	}
}

func (dec *cdrDecoder) length() (int, bool) {
	n, ok := dec.uint(4)
	if !ok || n > uint64(len(dec.raw)-dec.off) {
		return 0, false
	}
	return int(n), true
}

func fieldDecodeBool(dec *cdrDecoder, v reflect.Value) bool {
	if v.Kind() != reflect.Bool {
		return false
	}

	b, ok := dec.uint(1)
	if !ok {
		return false
	}
	v.SetBool(b != 0)
	return true
}

func fieldDecodeInt(dec *cdrDecoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return false
	}

	size := messageFieldTypeSize[dec.fieldType]
	u, ok := dec.uint(size)
	if !ok {
		return false
	}

	// sign extend from the wire width
	shift := 64 - 8*uint(size)
	v.SetInt(int64(u<<shift) >> shift)
	return true
}

func fieldDecodeUint(dec *cdrDecoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return false
	}

	u, ok := dec.uint(messageFieldTypeSize[dec.fieldType])
	if !ok {
		return false
	}
	v.SetUint(u)
	return true
}

func fieldDecodeFloat(dec *cdrDecoder, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return false
	}

	if dec.fieldType == MessageFieldTypeFloat32 {
		u, ok := dec.uint(4)
		if !ok {
			return false
		}
		v.SetFloat(float64(math.Float32frombits(uint32(u))))
		return true
	}

	u, ok := dec.uint(8)
	if !ok {
		return false
	}
	v.SetFloat(math.Float64frombits(u))
	return true
}

func fieldDecodeString(dec *cdrDecoder, v reflect.Value) bool {
	if v.Kind() != reflect.String {
		return false
	}

	length, ok := dec.length()
	if !ok {
		return false
	}

	b, ok := dec.next(length)
	if !ok {
		return false
	}
	// drop the terminating NUL
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	v.SetString(string(b))
	return true
}

func (dec *cdrDecoder) decodeMessageData(def *MessageDefinition, data interface{}) error {
	value := reflect.ValueOf(data)
	if value.Kind() != reflect.Ptr || value.IsNil() {
		return errInvalidDataType
	}

	value = value.Elem()
	if value.Kind() != reflect.Struct {
		return errInvalidDataType
	}

	return dec.decodeStruct(def, value)
}

func (dec *cdrDecoder) decodeStruct(def *MessageDefinition, value reflect.Value) error {
	mapper := make(map[string]reflect.Value)
	createFieldMapper(value, mapper)

	for _, field := range def.Fields {
		if field.Value != nil {
			continue
		}

		fieldValue, ok := mapper[field.Name]
		if !ok {
			return errors.Errorf("%s has no struct field for message field %s", value.Type(), field.Name)
		}

		var err error
		if field.IsArray {
			err = dec.decodeArray(field, fieldValue)
		} else {
			err = dec.decodeField(field, fieldValue)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (dec *cdrDecoder) decodeArray(field *MessageFieldDefinition, value reflect.Value) error {
	length := field.ArraySize
	if length < 0 {
		var ok bool
		length, ok = dec.length()
		if !ok {
			return errors.Wrapf(errInvalidFormat, "message field %s", field.Name)
		}
	}

	switch value.Kind() {
	case reflect.Slice:
		value.Set(reflect.MakeSlice(value.Type(), length, length))
	case reflect.Array:
		if value.Len() != length {
			return errors.Errorf("message field %s holds %d elements, the struct field %d", field.Name, length, value.Len())
		}
	default:
		return errors.Errorf("message field %s is an array, but the struct field is %s", field.Name, value.Kind())
	}

	if field.Type == MessageFieldTypeUint8 && value.Kind() == reflect.Slice && value.Type().Elem() == byteType {
		b, ok := dec.next(length)
		if !ok {
			return errors.Wrapf(errInvalidFormat, "message field %s", field.Name)
		}
		reflect.Copy(value, reflect.ValueOf(b))
		return nil
	}

	for i := 0; i < length; i++ {
		if err := dec.decodeField(field, value.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (dec *cdrDecoder) decodeField(field *MessageFieldDefinition, value reflect.Value) error {
	if field.Type == MessageFieldTypeComplex {
		if value.Kind() != reflect.Struct {
			return errors.Errorf("message field %s is a message, but the struct field is %s", field.Name, value.Kind())
		}
		return dec.decodeStruct(field.MsgType, value)
	}

	dec.fieldType = field.Type
	if !fieldDecodeHelper[field.Type](dec, value) {
		return errors.Wrapf(errInvalidFormat, "message field %s", field.Name)
	}
	return nil
}
