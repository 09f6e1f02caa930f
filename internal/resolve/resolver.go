// Package resolve extracts the configured fields from a downloaded columnar
// file and converts every stored value into a typed Value.
//
// Resolution happens in two steps. Resolve binds each FieldSpec entry to a
// column of the file and picks its conversion from a closed table keyed by
// the column's (physical, logical) type pair; any missing field or unknown
// pair fails the whole file before a single row is produced. The returned
// Rows then streams the file once, front to back.
package resolve

import (
	"context"
	"io"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/unicode/norm"

	"pq2pg/internal/columnar"
	"pq2pg/internal/download"
)

// Resolver opens files through a columnar.Opener.
type Resolver struct {
	opener columnar.Opener
}

// New returns a Resolver using opener.
func New(opener columnar.Opener) *Resolver { return &Resolver{opener: opener} }

type binding struct {
	field  Field
	col    columnar.Column
	pair   TypePair
	kind   Kind
	conv   convertFunc
	isText bool
}

// Resolve opens the artifact and binds spec to its schema. On success the
// caller owns the returned Rows and must Close it.
func (r *Resolver) Resolve(ctx context.Context, a download.Artifact, spec FieldSpec) (*Rows, error) {
	f, err := r.opener.Open(a.Path)
	if err != nil {
		return nil, &Error{Kind: MalformedFile, Key: a.Key, Err: err}
	}

	bindings, err := bind(f.Schema(), spec)
	if err != nil {
		f.Close()
		if re, ok := err.(*Error); ok {
			re.Key = a.Key
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("component", "resolve").Str("key", a.Key).
		Int64("rows", f.NumRows()).Int("fields", len(bindings)).Msg("schema bound")

	return &Rows{
		key:      a.Key,
		file:     f,
		rr:       f.Rows(),
		columns:  spec.Columns(),
		bindings: bindings,
	}, nil
}

func bind(schema []columnar.Column, spec FieldSpec) ([]binding, error) {
	exact := make(map[string]columnar.Column, len(schema))
	normalized := make(map[string]columnar.Column, len(schema))
	for _, c := range schema {
		exact[c.Name] = c
		normalized[norm.NFC.String(c.Name)] = c
	}

	out := make([]binding, 0, spec.Len())
	for _, fld := range spec.fields {
		col, ok := exact[fld.Source]
		if !ok {
			col, ok = normalized[norm.NFC.String(fld.Source)]
		}
		if !ok {
			return nil, &Error{Kind: FieldNotFound, Field: fld.Source}
		}
		pair := TypePair{Physical: col.Physical, Logical: col.Logical}
		if col.Nested {
			return nil, &Error{Kind: UnsupportedType, Field: fld.Source, Pair: pair}
		}
		conv, ok := conversions[pair]
		if !ok {
			return nil, &Error{Kind: UnsupportedType, Field: fld.Source, Pair: pair}
		}
		out = append(out, binding{
			field:  fld,
			col:    col,
			pair:   pair,
			kind:   conv(columnar.Value{}).Kind(),
			conv:   conv,
			isText: col.Physical == columnar.ByteArray,
		})
	}
	return out, nil
}

// Rows is a forward-only, single-pass sequence of destination rows. It is
// not safe for concurrent use.
type Rows struct {
	key      string
	file     columnar.File
	rr       columnar.RowReader
	columns  []string
	bindings []binding

	cur    Row
	n      int64
	err    error
	done   bool
	closed bool
}

// Columns returns the destination column names shared by every row.
func (r *Rows) Columns() []string { return r.columns }

// Types describes each destination column: the source field it comes from,
// that field's stored type and the Kind every non-null value will have.
func (r *Rows) Types() []ColumnType {
	out := make([]ColumnType, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = ColumnType{Field: b.field.Source, Column: b.field.Dest, Pair: b.pair, Kind: b.kind}
	}
	return out
}

// Next advances to the next row. It returns false at the end of the file or
// on error; check Err afterwards.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}
	raw, err := r.rr.Next()
	if err == io.EOF {
		r.done = true
		return false
	}
	if err != nil {
		r.fail(&Error{Kind: MalformedFile, Key: r.key, Err: err})
		return false
	}

	vals := make([]Value, len(r.bindings))
	for i, b := range r.bindings {
		if b.col.Index >= len(raw) {
			r.fail(&Error{Kind: MalformedFile, Key: r.key, Field: b.field.Source})
			return false
		}
		v := raw[b.col.Index]
		if v.Null {
			vals[i] = Null()
			continue
		}
		if b.isText && !utf8.Valid(v.Bytes) {
			r.fail(&Error{Kind: MalformedFile, Key: r.key, Field: b.field.Source,
				Err: errors.Errorf("invalid UTF-8 in text value at row %d", r.n)})
			return false
		}
		vals[i] = b.conv(v)
	}
	r.cur = Row{Columns: r.columns, Values: vals}
	r.n++
	return true
}

func (r *Rows) fail(err error) {
	r.err = err
	r.done = true
}

// Row returns the current row. Its Values slice is not reused.
func (r *Rows) Row() Row { return r.cur }

// Err returns the error that stopped iteration, if any.
func (r *Rows) Err() error { return r.err }

// Count returns the number of rows produced so far.
func (r *Rows) Count() int64 { return r.n }

// Close releases the file. It is safe to call more than once.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.done = true
	rerr := r.rr.Close()
	ferr := r.file.Close()
	if rerr != nil {
		return rerr
	}
	return ferr
}
