// Package serde provides the column serializers used by entity metadata.
//
// A Serde converts one entity field value into the value written to its
// column, and one scanned column value back into the field value. Every
// serializer passes nil through unchanged so nullable columns need no
// special handling.
package serde

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/vmihailenco/msgpack/v5"
)

// Serde is a bidirectional field <-> column converter.
type Serde interface {
	// ToDB converts a field value into a column value.
	ToDB(v any) (any, error)
	// FromDB converts a scanned column value into a field value.
	FromDB(v any) (any, error)
}

// Built-in serializers.
var (
	String  Serde = stringSerde{}
	Int64   Serde = int64Serde{}
	Int     Serde = intSerde{}
	Float64 Serde = float64Serde{}
	Bool    Serde = boolSerde{}
	Time    Serde = timeSerde{}
	// ID converts surrogate identities and foreign keys.
	ID Serde = int64Serde{}
)

type stringSerde struct{}

func (stringSerde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToStringE(v)
}

func (stringSerde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToStringE(v)
}

type int64Serde struct{}

func (int64Serde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toInt64(v)
}

func (int64Serde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toInt64(v)
}

type intSerde struct{}

func (intSerde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toInt64(v)
}

func (intSerde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return int(n), nil
}

type float64Serde struct{}

func (float64Serde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToFloat64E(bytesToString(v))
}

func (float64Serde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToFloat64E(bytesToString(v))
}

type boolSerde struct{}

func (boolSerde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToBoolE(bytesToString(v))
}

func (boolSerde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToBoolE(bytesToString(v))
}

type timeSerde struct{}

func (timeSerde) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	t, err := cast.ToTimeE(bytesToString(v))
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

func (timeSerde) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return cast.ToTimeE(bytesToString(v))
}

// Msgpack returns a serializer storing values of type T as msgpack
// encoded bytes, for structured fields kept in a single blob column.
func Msgpack[T any]() Serde {
	return msgpackSerde[T]{}
}

type msgpackSerde[T any] struct{}

func (msgpackSerde[T]) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(T); !ok {
		var zero T
		return nil, fmt.Errorf("serde: msgpack: got %T, want %T", v, zero)
	}
	return msgpack.Marshal(v)
}

func (msgpackSerde[T]) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var b []byte
	switch v := v.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, fmt.Errorf("serde: msgpack: unexpected column value %T", v)
	}
	var out T
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("serde: msgpack: %w", err)
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return cast.ToInt64E(bytesToString(v))
}

// bytesToString turns driver []byte values (text columns in some drivers)
// into strings so cast can parse them.
func bytesToString(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
