package syncerr

import "errors"

var (
	// ErrNotAuthorized is returned when a bearer token fails
	// verification or its subject has no membership on the resource.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrRiftNotFound is returned when a rift ID in a request doesn't
	// resolve to a known rift.
	ErrRiftNotFound = errors.New("rift not found")

	// ErrProjectNotFound is returned when a project ID or name doesn't
	// resolve to a known project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrConflictDetected names a diff whose pre-image doesn't match
	// current content. pkg/session reports conflicts with a
	// ConflictDetected message instead; no code in this module returns
	// this sentinel.
	ErrConflictDetected = errors.New("conflict detected")

	// ErrDependencyMissing is returned by the transaction manager when
	// a declared prerequisite transaction is unknown or not committed.
	ErrDependencyMissing = errors.New("transaction dependency missing")

	// ErrTransactionNotFound is returned when a transaction ID in a
	// commit/rollback/add-file request is unknown.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDiffApply is returned when a line diff's operations don't
	// reconcile against the content they're being applied to.
	ErrDiffApply = errors.New("diff did not apply")

	// ErrObjectStoreIO is returned when a content-addressed blob
	// fails to read or write.
	ErrObjectStoreIO = errors.New("object store io error")
)

// Code maps a sentinel error to the protocol.Error wire code clients
// branch on. Unrecognized errors map to "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrRiftNotFound):
		return "rift_not_found"
	case errors.Is(err, ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, ErrConflictDetected):
		return "conflict_detected"
	case errors.Is(err, ErrDependencyMissing):
		return "dependency_missing"
	case errors.Is(err, ErrTransactionNotFound):
		return "transaction_not_found"
	case errors.Is(err, ErrDiffApply):
		return "diff_apply_failed"
	case errors.Is(err, ErrObjectStoreIO):
		return "object_store_io"
	default:
		return "internal"
	}
}
