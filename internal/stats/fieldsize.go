package stats

import (
	"fmt"
	"time"

	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Byte sizes charged per stored value
const (
	IntSize      = 4
	DatetimeSize = 8
	FloatSize    = 8
	IDSize       = 12
	BoolSize     = 1
)

// classify maps a decoded BSON value to its storage class
func classify(v interface{}) model.FieldType {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return model.FieldTypeInt
	case string:
		return model.FieldTypeString
	case time.Time, primitive.DateTime, primitive.Timestamp:
		return model.FieldTypeDatetime
	case float32, float64, primitive.Decimal128:
		return model.FieldTypeFloat
	default:
		return model.FieldTypeOther
	}
}

// valueSize estimates the stored size of a value. Nested documents and arrays
// are charged the sum of their elements.
func valueSize(v interface{}) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(val))
	case bool:
		return BoolSize
	case primitive.ObjectID:
		return IDSize
	case primitive.Binary:
		return int64(len(val.Data))
	case bson.D:
		var total int64
		for _, elem := range val {
			total += valueSize(elem.Value)
		}
		return total
	case bson.M:
		var total int64
		for _, elem := range val {
			total += valueSize(elem)
		}
		return total
	case bson.A:
		var total int64
		for _, elem := range val {
			total += valueSize(elem)
		}
		return total
	case []interface{}:
		return valueSize(bson.A(val))
	}

	switch classify(v) {
	case model.FieldTypeInt:
		return IntSize
	case model.FieldTypeDatetime:
		return DatetimeSize
	case model.FieldTypeFloat:
		return FloatSize
	}
	return 0
}

// distinctKey renders a value into a comparable key for distinct counting
func distinctKey(v interface{}) string {
	return fmt.Sprintf("%T:%v", v, v)
}
