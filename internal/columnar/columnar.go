// Package columnar is the boundary to the columnar file reader. It describes
// a file's flat schema in terms of physical storage types and logical
// annotations, and hands out raw per-column values one row at a time.
//
// Interpretation of those values (which Go/SQL type a column becomes) is not
// this package's concern; see package resolve.
package columnar

import (
	"fmt"
	"io"
)

// Physical is the on-disk storage type of a column.
type Physical int

const (
	PhysicalUnknown Physical = iota
	Boolean
	Int32
	Int64
	Int96
	Float
	Double
	ByteArray
	FixedLenByteArray
)

var physicalNames = [...]string{
	PhysicalUnknown:   "UNKNOWN",
	Boolean:           "BOOLEAN",
	Int32:             "INT32",
	Int64:             "INT64",
	Int96:             "INT96",
	Float:             "FLOAT",
	Double:            "DOUBLE",
	ByteArray:         "BYTE_ARRAY",
	FixedLenByteArray: "FIXED_LEN_BYTE_ARRAY",
}

func (p Physical) String() string {
	if p >= 0 && int(p) < len(physicalNames) {
		return physicalNames[p]
	}
	return fmt.Sprintf("Physical(%d)", int(p))
}

// Logical is the logical (or legacy converted) annotation refining a
// physical type.
type Logical int

const (
	LogicalNone Logical = iota
	String
	Enum
	JSON
	Date
	TimestampMillis
	TimestampMicros
	TimestampNanos
	Int8
	Int16
	IntSigned32
	IntSigned64
	Uint8
	Uint16
	Uint32
	Uint64
	Decimal
	Time
	UUID
	LogicalOther
)

var logicalNames = [...]string{
	LogicalNone:     "NONE",
	String:          "STRING",
	Enum:            "ENUM",
	JSON:            "JSON",
	Date:            "DATE",
	TimestampMillis: "TIMESTAMP(MILLIS)",
	TimestampMicros: "TIMESTAMP(MICROS)",
	TimestampNanos:  "TIMESTAMP(NANOS)",
	Int8:            "INT(8,true)",
	Int16:           "INT(16,true)",
	IntSigned32:     "INT(32,true)",
	IntSigned64:     "INT(64,true)",
	Uint8:           "INT(8,false)",
	Uint16:          "INT(16,false)",
	Uint32:          "INT(32,false)",
	Uint64:          "INT(64,false)",
	Decimal:         "DECIMAL",
	Time:            "TIME",
	UUID:            "UUID",
	LogicalOther:    "OTHER",
}

func (l Logical) String() string {
	if l >= 0 && int(l) < len(logicalNames) {
		return logicalNames[l]
	}
	return fmt.Sprintf("Logical(%d)", int(l))
}

// Column describes one leaf column of a file.
type Column struct {
	Name     string // dotted path for nested leaves
	Index    int    // position of the column's values in a Row
	Physical Physical
	Logical  Logical
	Nested   bool // repeated or inside a group; not a flat field
}

// Value is a raw stored value. Only the field matching the column's physical
// type is set; Null overrides all of them.
type Value struct {
	Null  bool
	Bool  bool
	I32   int32
	I64   int64
	F32   float32
	F64   float64
	Bytes []byte
}

// Row holds one value per column, indexed by Column.Index. A Row is only
// valid until the next call to RowReader.Next.
type Row []Value

// RowReader yields rows front to back. Next returns io.EOF after the last row.
type RowReader interface {
	Next() (Row, error)
	io.Closer
}

// File is an opened columnar file.
type File interface {
	Schema() []Column
	Rows() RowReader
	NumRows() int64
	io.Closer
}

// Opener opens a file on local disk.
type Opener interface {
	Open(path string) (File, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (File, error)

func (f OpenerFunc) Open(path string) (File, error) { return f(path) }
