// Package errors defines the error handling used across the resolver,
// sources, downloader/linker and registry.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// As is a re-export of the standard library's errors.As so callers don't
// need two error imports.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is a re-export of the standard library's errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// Error is the error type used throughout this module. Based on the
// design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Subject is the package name, specifier path, or file at fault.
	Subject string

	// Op is the operation being performed, e.g. "resolver.resolve", "cas.write".
	Op Op

	// Kind classifies the error per the taxonomy of §7.
	Kind Kind

	// Err is the wrapped error, if any.
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Subject != "" {
		pad(b, ": ")
		b.WriteString(e.Subject)
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrapped, ok := e.Err.(*Error); ok {
			if !wrapped.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrapped.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

// Zero reports whether e carries no information.
func (e *Error) Zero() bool {
	return e.Op == "" && e.Subject == "" && e.Kind == 0 && e.Err == nil
}

// Op describes the operation being performed, e.g. "resolver.resolve".
type Op string

// Kind classifies an error into one of the §7 error-handling categories.
type Kind int

const (
	Other Kind = iota // unclassified; not printed

	// InputValidation covers malformed names, unknown targets, missing
	// required manifest fields. Never retried.
	InputValidation

	// SourceRefresh covers network, auth, and remote-missing failures
	// while bringing a source's local state up to date.
	SourceRefresh

	// Resolution covers no-satisfying-version, target incompatibility,
	// unsatisfied peers, lockfile staleness under --locked, and a
	// publish of a version that already exists.
	Resolution

	// Download covers HTTP status errors, archive corruption, and hash
	// mismatches while materializing a package.
	Download

	// Publish covers index read, commit and push failures and blob
	// upload failures on the registry's write path.
	Publish

	// Forbidden covers scope-ownership denial on the registry's write
	// path.
	Forbidden

	// Link covers missing library files, script-parse errors, and
	// missing dependency containers while generating shims.
	Link
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "error"
	case InputValidation:
		return "invalid input"
	case SourceRefresh:
		return "source refresh failed"
	case Resolution:
		return "resolution failed"
	case Download:
		return "download failed"
	case Publish:
		return "publish failed"
	case Forbidden:
		return "forbidden"
	case Link:
		return "link failed"
	}
	return "unknown kind"
}

// E builds an *Error from its arguments. Accepted argument types: Op,
// Kind, string (subject), *Error, error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			if e.Subject == "" {
				e.Subject = a
			} else {
				e.Err = fmt.Errorf("%s", a)
			}
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to errors.E", a, a))
		}
	}

	wrapped, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if e.Subject == wrapped.Subject {
		wrapped.Subject = ""
	}
	if e.Op == wrapped.Op {
		wrapped.Op = ""
	}
	if e.Kind == wrapped.Kind {
		wrapped.Kind = 0
	}

	return e
}

// KindOf extracts the Kind from err, walking wrapped *Error values.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		if e.Kind != 0 {
			return e.Kind
		}
		if e.Err != nil {
			return KindOf(e.Err)
		}
	}
	return Other
}
