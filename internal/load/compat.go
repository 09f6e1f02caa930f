package load

import (
	"fmt"
	"slices"
	"strings"

	"pq2pg/internal/resolve"
)

// columnTypes is the closed set of destination types each value kind may be
// copied into. Every entry holds the value exactly; a kind is never narrowed,
// truncated or reparsed on the way in. Names are format_type() renderings
// without type modifiers.
var columnTypes = map[resolve.Kind][]string{
	resolve.KindBool:      {"boolean"},
	resolve.KindInt16:     {"smallint", "integer", "bigint", "numeric"},
	resolve.KindInt32:     {"integer", "bigint", "numeric"},
	resolve.KindInt64:     {"bigint", "numeric"},
	resolve.KindFloat32:   {"real", "double precision"},
	resolve.KindFloat64:   {"double precision"},
	resolve.KindText:      {"text", "character varying", "character", "json", "jsonb"},
	resolve.KindDate:      {"date"},
	resolve.KindTimestamp: {"timestamp without time zone", "timestamp with time zone"},
}

// Compatible reports whether values of kind may be copied into a column of
// pgType, e.g. "character varying(40)".
func Compatible(kind resolve.Kind, pgType string) bool {
	return slices.Contains(columnTypes[kind], baseType(pgType))
}

// baseType drops type modifiers: "timestamp(3) with time zone" becomes
// "timestamp with time zone". Array brackets are kept.
func baseType(pgType string) string {
	var b strings.Builder
	depth := 0
	for _, r := range pgType {
		switch {
		case r == '(':
			depth++
		case r == ')':
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// checkTypes matches each declared column type against info. Every
// incompatible field is named in the returned SchemaMismatch.
func checkTypes(table string, info []ColumnInfo, types []resolve.ColumnType) error {
	byName := make(map[string]ColumnInfo, len(info))
	for _, c := range info {
		byName[c.Name] = c
	}
	var bad []string
	for _, t := range types {
		if t.Kind == resolve.KindNull {
			continue
		}
		col, ok := byName[t.Column]
		if !ok {
			bad = append(bad, fmt.Sprintf("field %q has no column %q", t.Field, t.Column))
			continue
		}
		if !Compatible(t.Kind, col.Type) {
			bad = append(bad, fmt.Sprintf("field %q (%s as %s) cannot be loaded into column %q of type %s",
				t.Field, t.Pair, t.Kind, col.Name, col.Type))
		}
	}
	if len(bad) > 0 {
		return &Error{Kind: SchemaMismatch, Table: table, Message: strings.Join(bad, "; ")}
	}
	return nil
}
