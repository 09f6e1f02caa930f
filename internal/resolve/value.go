package resolve

import (
	"fmt"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindText
	KindDate
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// TimeUnit is the resolution of a timestamp value.
type TimeUnit uint8

const (
	Millis TimeUnit = iota + 1
	Micros
)

func (u TimeUnit) String() string {
	switch u {
	case Millis:
		return "ms"
	case Micros:
		return "us"
	default:
		return "?"
	}
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Value is a typed cell. The zero Value is null. Values are only built with
// the constructors below, so exactly one variant is ever populated.
type Value struct {
	kind Kind
	unit TimeUnit // KindTimestamp only
	b    bool
	i    int64 // ints, days since epoch, timestamp ticks
	f    float64
	s    string
}

// Constructors, one per variant.

func Null() Value { return Value{} }
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func Int16(v int16) Value { return Value{kind: KindInt16, i: int64(v)} }
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Date holds days since 1970-01-01.
func Date(daysSinceEpoch int32) Value {
	return Value{kind: KindDate, i: int64(daysSinceEpoch)}
}

// Timestamp holds ticks of unit since the Unix epoch, UTC.
func Timestamp(ticks int64, unit TimeUnit) Value {
	return Value{kind: KindTimestamp, i: ticks, unit: unit}
}

// Accessors return the zero value for other variants.

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Text() string { return v.s }
func (v Value) Unit() TimeUnit { return v.unit }

// Days returns the day offset of a date value.
func (v Value) Days() int32 { return int32(v.i) }

// Time returns the instant of a date or timestamp value in UTC.
func (v Value) Time() time.Time {
	switch v.kind {
	case KindDate:
		return epoch.AddDate(0, 0, int(v.i))
	case KindTimestamp:
		if v.unit == Millis {
			return time.UnixMilli(v.i).UTC()
		}
		return time.UnixMicro(v.i).UTC()
	default:
		return time.Time{}
	}
}

// Any converts the value to the Go type a database driver expects.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt16:
		return int16(v.i)
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindFloat32:
		return float32(v.f)
	case KindFloat64:
		return v.f
	case KindText:
		return v.s
	case KindDate, KindTimestamp:
		return v.Time()
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindDate:
		return v.Time().Format("2006-01-02")
	case KindTimestamp:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Any())
	}
}

// Row is one destination row: values aligned with Columns.
type Row struct {
	Columns []string
	Values  []Value
}
