package resolve

import (
	"sort"

	"pq2pg/internal/columnar"
)

// TypePair is a column's physical storage type and logical annotation.
type TypePair struct {
	Physical columnar.Physical
	Logical  columnar.Logical
}

func (p TypePair) String() string { return p.Physical.String() + "/" + p.Logical.String() }

// ColumnType is the declared type of one destination column of a Rows.
type ColumnType struct {
	Field  string
	Column string
	Pair   TypePair
	Kind   Kind
}

type convertFunc func(columnar.Value) Value

// conversions is the complete set of supported source types. A pair missing
// from this table is refused with UnsupportedType; nothing is coerced.
var conversions = map[TypePair]convertFunc{
	{columnar.Boolean, columnar.LogicalNone}: func(v columnar.Value) Value { return Bool(v.Bool) },

	{columnar.Int32, columnar.LogicalNone}: asInt32,
	{columnar.Int32, columnar.IntSigned32}: asInt32,
	{columnar.Int32, columnar.Int16}:       asInt16,
	{columnar.Int32, columnar.Int8}:        asInt16,
	{columnar.Int32, columnar.Date}:        func(v columnar.Value) Value { return Date(v.I32) },

	{columnar.Int64, columnar.LogicalNone}:     asInt64,
	{columnar.Int64, columnar.IntSigned64}:     asInt64,
	{columnar.Int64, columnar.TimestampMillis}: func(v columnar.Value) Value { return Timestamp(v.I64, Millis) },
	{columnar.Int64, columnar.TimestampMicros}: func(v columnar.Value) Value { return Timestamp(v.I64, Micros) },

	{columnar.Float, columnar.LogicalNone}:  func(v columnar.Value) Value { return Float32(v.F32) },
	{columnar.Double, columnar.LogicalNone}: func(v columnar.Value) Value { return Float64(v.F64) },

	{columnar.ByteArray, columnar.String}: asText,
	{columnar.ByteArray, columnar.Enum}:   asText,
	{columnar.ByteArray, columnar.JSON}:   asText,
}

func asInt16(v columnar.Value) Value { return Int16(int16(v.I32)) }
func asInt32(v columnar.Value) Value { return Int32(v.I32) }
func asInt64(v columnar.Value) Value { return Int64(v.I64) }
func asText(v columnar.Value) Value  { return Text(string(v.Bytes)) }

// Supported lists every accepted type pair in a stable order.
func Supported() []TypePair {
	out := make([]TypePair, 0, len(conversions))
	for p := range conversions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Physical != out[j].Physical {
			return out[i].Physical < out[j].Physical
		}
		return out[i].Logical < out[j].Logical
	})
	return out
}
