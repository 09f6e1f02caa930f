// Package parquet implements the columnar file boundary with parquet-go.
//
// Files are opened from local disk (the downloader has already staged them)
// and rows are streamed row group by row group in small chunks, so memory use
// is bounded by the chunk size rather than the file size.
package parquet

import (
	"io"
	"os"
	"strings"

	pq "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/columnar"
)

// readChunk is the number of rows pulled from a row group per ReadRows call.
const readChunk = 256

// Opener opens parquet files.
type Opener struct{}

// Open implements columnar.Opener.
func (Opener) Open(path string) (columnar.File, error) { return Open(path) }

// File is an open parquet file.
type File struct {
	f      *os.File
	pf     *pq.File
	schema []columnar.Column
}

// Open opens path and reads its footer.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("parquet: open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Errorf("parquet: stat: %w", err)
	}
	adviseSequential(f)

	pf, err := pq.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, errors.Errorf("parquet: read footer of %s: %w", path, err)
	}

	schema := pf.Schema()
	var cols []columnar.Column
	for _, leafPath := range schema.Columns() {
		leaf, ok := schema.Lookup(leafPath...)
		if !ok {
			continue
		}
		t := leaf.Node.Type()
		cols = append(cols, columnar.Column{
			Name:     strings.Join(leafPath, "."),
			Index:    leaf.ColumnIndex,
			Physical: physicalOf(t),
			Logical:  logicalOf(t),
			Nested:   len(leafPath) > 1 || leaf.MaxRepetitionLevel > 0,
		})
	}
	return &File{f: f, pf: pf, schema: cols}, nil
}

// Schema returns the leaf columns in file order.
func (p *File) Schema() []columnar.Column { return p.schema }

// NumRows returns the row count recorded in the footer.
func (p *File) NumRows() int64 { return p.pf.NumRows() }

// Close closes the underlying file.
func (p *File) Close() error { return p.f.Close() }

// Rows returns a reader over every row group in order.
func (p *File) Rows() columnar.RowReader {
	return &rowReader{
		groups: p.pf.RowGroups(),
		buf:    make([]pq.Row, readChunk),
		out:    make(columnar.Row, len(p.schema)),
	}
}

type rowReader struct {
	groups []pq.RowGroup
	next   int // index of the next row group to open
	rows   pq.Rows
	buf    []pq.Row
	n, pos int
	eof    bool // current group is drained
	out    columnar.Row
}

func (r *rowReader) Next() (columnar.Row, error) {
	for r.pos >= r.n {
		if r.rows != nil && r.eof {
			r.rows.Close()
			r.rows = nil
		}
		if r.rows == nil {
			if r.next >= len(r.groups) {
				return nil, io.EOF
			}
			r.rows = r.groups[r.next].Rows()
			r.next++
			r.eof = false
		}
		n, err := r.rows.ReadRows(r.buf)
		r.n, r.pos = n, 0
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, errors.Errorf("parquet: read rows: %w", err)
			}
			r.eof = true
		}
	}

	row := r.buf[r.pos]
	r.pos++
	for i := range r.out {
		r.out[i] = columnar.Value{Null: true}
	}
	for _, v := range row {
		c := v.Column()
		if c < 0 || c >= len(r.out) {
			continue
		}
		r.out[c] = valueOf(v)
	}
	return r.out, nil
}

func (r *rowReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.rows = nil
		return err
	}
	return nil
}

func valueOf(v pq.Value) columnar.Value {
	if v.IsNull() {
		return columnar.Value{Null: true}
	}
	switch v.Kind() {
	case pq.Boolean:
		return columnar.Value{Bool: v.Boolean()}
	case pq.Int32:
		return columnar.Value{I32: v.Int32()}
	case pq.Int64:
		return columnar.Value{I64: v.Int64()}
	case pq.Float:
		return columnar.Value{F32: v.Float()}
	case pq.Double:
		return columnar.Value{F64: v.Double()}
	case pq.ByteArray, pq.FixedLenByteArray:
		// The page buffer is reused by the next ReadRows.
		return columnar.Value{Bytes: append([]byte(nil), v.ByteArray()...)}
	default:
		return columnar.Value{}
	}
}

func physicalOf(t pq.Type) columnar.Physical {
	switch t.Kind() {
	case pq.Boolean:
		return columnar.Boolean
	case pq.Int32:
		return columnar.Int32
	case pq.Int64:
		return columnar.Int64
	case pq.Int96:
		return columnar.Int96
	case pq.Float:
		return columnar.Float
	case pq.Double:
		return columnar.Double
	case pq.ByteArray:
		return columnar.ByteArray
	case pq.FixedLenByteArray:
		return columnar.FixedLenByteArray
	default:
		return columnar.PhysicalUnknown
	}
}

// logicalOf prefers the logical type annotation and falls back to the legacy
// converted type written by older producers.
func logicalOf(t pq.Type) columnar.Logical {
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil:
			return columnar.String
		case lt.Enum != nil:
			return columnar.Enum
		case lt.Json != nil:
			return columnar.JSON
		case lt.Date != nil:
			return columnar.Date
		case lt.Timestamp != nil:
			switch u := lt.Timestamp.Unit; {
			case u.Millis != nil:
				return columnar.TimestampMillis
			case u.Micros != nil:
				return columnar.TimestampMicros
			case u.Nanos != nil:
				return columnar.TimestampNanos
			}
			return columnar.LogicalOther
		case lt.Integer != nil:
			return intLogical(int(lt.Integer.BitWidth), lt.Integer.IsSigned)
		case lt.Decimal != nil:
			return columnar.Decimal
		case lt.Time != nil:
			return columnar.Time
		case lt.UUID != nil:
			return columnar.UUID
		default:
			return columnar.LogicalOther
		}
	}
	if ct := t.ConvertedType(); ct != nil {
		switch *ct {
		case deprecated.UTF8:
			return columnar.String
		case deprecated.Enum:
			return columnar.Enum
		case deprecated.Json:
			return columnar.JSON
		case deprecated.Date:
			return columnar.Date
		case deprecated.TimestampMillis:
			return columnar.TimestampMillis
		case deprecated.TimestampMicros:
			return columnar.TimestampMicros
		case deprecated.Int8:
			return columnar.Int8
		case deprecated.Int16:
			return columnar.Int16
		case deprecated.Int32:
			return columnar.IntSigned32
		case deprecated.Int64:
			return columnar.IntSigned64
		case deprecated.Uint8:
			return columnar.Uint8
		case deprecated.Uint16:
			return columnar.Uint16
		case deprecated.Uint32:
			return columnar.Uint32
		case deprecated.Uint64:
			return columnar.Uint64
		case deprecated.Decimal:
			return columnar.Decimal
		default:
			return columnar.LogicalOther
		}
	}
	return columnar.LogicalNone
}

func intLogical(bits int, signed bool) columnar.Logical {
	switch {
	case signed && bits == 8:
		return columnar.Int8
	case signed && bits == 16:
		return columnar.Int16
	case signed && bits == 32:
		return columnar.IntSigned32
	case signed && bits == 64:
		return columnar.IntSigned64
	case !signed && bits == 8:
		return columnar.Uint8
	case !signed && bits == 16:
		return columnar.Uint16
	case !signed && bits == 32:
		return columnar.Uint32
	case !signed && bits == 64:
		return columnar.Uint64
	default:
		return columnar.LogicalOther
	}
}
