package docdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidID        = errors.New("invalid id")
	ErrNotIdentifiable  = errors.New("document has no id")
	ErrUniqueConstraint = errors.New("unique constraint violation")
	ErrIndexing         = errors.New("indexing error")
	ErrFilter           = errors.New("invalid filter")
	ErrComparison       = errors.New("values are not comparable")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrClosed           = errors.New("collection is closed")
	ErrTransaction      = errors.New("transaction is closed")
	ErrNotFound         = errors.New("not found")
)

// DataError reports stored bytes that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// CollectionError attaches the collection, index and document id an error
// happened on. Err is usually one of the Err* sentinels.
type CollectionError struct {
	Collection string
	Index      []string
	ID         ID
	Msg        string
	Err        error
}

func collErrf(coll string, fields []string, id ID, err error, format string, args ...any) error {
	return &CollectionError{coll, fields, id, fmt.Sprintf(format, args...), err}
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Collection)
	if len(e.Index) > 0 {
		buf.WriteByte('[')
		buf.WriteString(strings.Join(e.Index, ","))
		buf.WriteByte(']')
	}
	if e.ID != 0 {
		buf.WriteByte('/')
		buf.WriteString(e.ID.String())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func validationErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func filterErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFilter, fmt.Sprintf(format, args...))
}
