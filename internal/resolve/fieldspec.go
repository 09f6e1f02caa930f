package resolve

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Field maps one source field to its destination column.
type Field struct {
	Source string
	Dest   string
}

// FieldSpec is the ordered, immutable list of fields to extract.
type FieldSpec struct {
	fields []Field
}

// NewFieldSpec builds a spec from the desired source fields and an optional
// rename map. Fields without a rename entry (or with an empty one) keep their
// source name. Duplicate sources or destinations are rejected.
func NewFieldSpec(desired []string, rename map[string]string) (FieldSpec, error) {
	if len(desired) == 0 {
		return FieldSpec{}, errors.New("field spec: no desired fields")
	}
	fields := make([]Field, 0, len(desired))
	seenSrc := make(map[string]bool, len(desired))
	seenDst := make(map[string]string, len(desired))
	for _, src := range desired {
		if strings.TrimSpace(src) == "" {
			return FieldSpec{}, errors.New("field spec: empty field name")
		}
		if seenSrc[src] {
			return FieldSpec{}, errors.Errorf("field spec: field %q listed twice", src)
		}
		seenSrc[src] = true

		dst := src
		if r := rename[src]; r != "" {
			dst = r
		}
		if other, dup := seenDst[dst]; dup {
			return FieldSpec{}, errors.Errorf("field spec: %q and %q both map to column %q", other, src, dst)
		}
		seenDst[dst] = src
		fields = append(fields, Field{Source: src, Dest: dst})
	}
	return FieldSpec{fields: fields}, nil
}

// Fields returns a copy of the field list.
func (s FieldSpec) Fields() []Field { return append([]Field(nil), s.fields...) }

// Columns returns the destination column names in order.
func (s FieldSpec) Columns() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Dest
	}
	return out
}

// Len returns the number of fields.
func (s FieldSpec) Len() int { return len(s.fields) }
