package mimalloc

import "golang.org/x/xerrors"

// InvariantError is the panic value assert raises when it detects that
// one of spec.md §3's invariants has drifted (e.g. page_count no longer
// matches the sum of queue lengths). Per §7, this is a debugging aid, not
// a correctness mechanism. assert is active in every build, and no public
// operation returns this as an ordinary error value.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string { return e.msg }

// assert panics with an *InvariantError when cond is false. Mirrors the
// teacher's own throw("...") calls in mheap.go/mcentral.go for invariant
// violations. The message is formatted with xerrors.Errorf, and only its
// text is kept: a caller that does recover() can match the
// *InvariantError type, but there is no wrapped cause to unwrap.
func assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(&InvariantError{msg: xerrors.Errorf(format, args...).Error()})
}
