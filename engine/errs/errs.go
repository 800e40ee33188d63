// Package errs defines the typed error classes the sync engine
// distinguishes, so call sites can test for a class instead of
// string-matching: each class carries a different recovery policy
// (retry, recover locally, fall back, or abort and restore).
package errs

import "fmt"

// Kind classifies an error into one of the recovery-policy buckets.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindIdentity
	KindWorkingTree
	KindGitTransient
	KindForgeTransient
	KindForgeConflict
	KindForgeRefusal
	KindMergeConflict
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindIdentity:
		return "identity"
	case KindWorkingTree:
		return "working-tree"
	case KindGitTransient:
		return "git-transient"
	case KindForgeTransient:
		return "forge-transient"
	case KindForgeConflict:
		return "forge-conflict"
	case KindForgeRefusal:
		return "forge-refusal"
	case KindMergeConflict:
		return "merge-conflict"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the policy kind the caller needs
// to decide whether to retry, recover locally, or abort.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configuration(op string, err error) error   { return wrap(KindConfiguration, op, err) }
func Identity(op string, err error) error        { return wrap(KindIdentity, op, err) }
func WorkingTree(op string, err error) error     { return wrap(KindWorkingTree, op, err) }
func GitTransient(op string, err error) error    { return wrap(KindGitTransient, op, err) }
func ForgeTransient(op string, err error) error  { return wrap(KindForgeTransient, op, err) }
func ForgeConflict(op string, err error) error   { return wrap(KindForgeConflict, op, err) }
func ForgeRefusal(op string, err error) error    { return wrap(KindForgeRefusal, op, err) }
func MergeConflict(op string, err error) error   { return wrap(KindMergeConflict, op, err) }

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
