package resolve

import "fmt"

// ErrorKind classifies a file-level extraction failure.
type ErrorKind int

const (
	FieldNotFound ErrorKind = iota + 1
	UnsupportedType
	MalformedFile
)

func (k ErrorKind) String() string {
	switch k {
	case FieldNotFound:
		return "field not found"
	case UnsupportedType:
		return "unsupported type"
	case MalformedFile:
		return "malformed file"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned when a file cannot be extracted. It fails that file only.
type Error struct {
	Kind  ErrorKind
	Key   string
	Field string
	Pair  TypePair // UnsupportedType only
	Err   error
}

// Sentinels for errors.Is; they match any Error of the same kind.
var (
	ErrFieldNotFound   = &Error{Kind: FieldNotFound}
	ErrUnsupportedType = &Error{Kind: UnsupportedType}
	ErrMalformedFile   = &Error{Kind: MalformedFile}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Key != "" {
		msg = e.Key + ": " + msg
	}
	switch e.Kind {
	case FieldNotFound:
		msg += fmt.Sprintf(": %q", e.Field)
	case UnsupportedType:
		msg += fmt.Sprintf(": field %q has type %s", e.Field, e.Pair)
	case MalformedFile:
		if e.Field != "" {
			msg += fmt.Sprintf(": field %q", e.Field)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Key == "" && t.Field == ""
}
