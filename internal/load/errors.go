package load

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gitlab.com/tozd/go/errors"
)

// ErrorKind classifies a load failure.
type ErrorKind int

const (
	// ConstraintViolation means the destination rejected the data: a
	// constraint (SQLSTATE class 23) or a data exception (class 22).
	ConstraintViolation ErrorKind = iota + 1
	// SchemaMismatch means the rows do not fit the destination table
	// (class 42, or inconsistent row shapes caught before sending).
	SchemaMismatch
	// ConnectionError means the destination could not be reached. It is
	// fatal to the run.
	ConnectionError
)

func (k ErrorKind) String() string {
	switch k {
	case ConstraintViolation:
		return "constraint violation"
	case SchemaMismatch:
		return "schema mismatch"
	case ConnectionError:
		return "connection error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a classified load failure.
type Error struct {
	Kind     ErrorKind
	Table    string
	SQLState string // empty when not reported by the server
	Message  string // server diagnostic or local explanation
	Err      error
}

// Sentinels for errors.Is; they match any Error of the same kind.
var (
	ErrConstraintViolation = &Error{Kind: ConstraintViolation}
	ErrSchemaMismatch      = &Error{Kind: SchemaMismatch}
	ErrConnection          = &Error{Kind: ConnectionError}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Table != "" {
		msg += " on " + e.Table
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.SQLState != "" {
		msg += " (" + e.SQLState + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Table == "" && t.Message == "" && t.Err == nil
}

// Fatal reports whether err must stop the run.
func Fatal(err error) bool { return errors.Is(err, ErrConnection) }

// classify maps a driver error onto the load taxonomy.
func classify(table string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &Error{Kind: ConnectionError, Table: table, Err: err}
	}

	msg := pgErr.Message
	if pgErr.Detail != "" {
		msg += " (" + pgErr.Detail + ")"
	}
	out := &Error{Table: table, SQLState: pgErr.SQLState(), Message: msg, Err: err}
	switch sqlClass(pgErr.Code) {
	case "23", "22":
		out.Kind = ConstraintViolation
	case "42":
		out.Kind = SchemaMismatch
	case "08", "53", "57", "58":
		// connection exception, insufficient resources, operator
		// intervention, system error
		out.Kind = ConnectionError
	default:
		out.Kind = ConstraintViolation
	}
	return out
}

func sqlClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
