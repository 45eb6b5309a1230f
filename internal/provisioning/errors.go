package provisioning

import (
	"errors"
	"fmt"
)

// LookupError is a failed presence query. Retryable lookups may be attempted again.
type LookupError struct {
	Ref       Ref
	Err       error
	Retryable bool
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s failed: %v", e.Ref, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// DependencyUnresolvedError is reported for a resource that was not applied
// because a resource it depends on failed or was never reached.
type DependencyUnresolvedError struct {
	Ref        Ref
	Dependency string
}

func (e *DependencyUnresolvedError) Error() string {
	return fmt.Sprintf("%s not applied: dependency %s unresolved", e.Ref, e.Dependency)
}

// ProtectedResourceViolation is an attempted destructive action on a
// persistent-protected resource. It is always fatal.
type ProtectedResourceViolation struct {
	Ref       Ref
	Operation string
}

func (e *ProtectedResourceViolation) Error() string {
	return fmt.Sprintf("refusing to %s persistent-protected %s", e.Operation, e.Ref)
}

// ErrRestoreDataMissing means no snapshot exists; the deployment starts cold.
var ErrRestoreDataMissing = errors.New("no snapshot available to restore")

// ErrStateLocked means another run holds the state lock.
var ErrStateLocked = errors.New("state is locked by another run")

// CertificateSourceUnavailableError is one source of the certificate chain failing.
type CertificateSourceUnavailableError struct {
	Source string
	Domain string
	Err    error
}

func (e *CertificateSourceUnavailableError) Error() string {
	return fmt.Sprintf("certificate source %s unavailable for %s: %v", e.Source, e.Domain, e.Err)
}

func (e *CertificateSourceUnavailableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is, or wraps, a retryable lookup failure.
func IsRetryable(err error) bool {
	var le *LookupError
	return errors.As(err, &le) && le.Retryable
}

// IsProtectedViolation reports whether err is, or wraps, a ProtectedResourceViolation.
func IsProtectedViolation(err error) bool {
	var pv *ProtectedResourceViolation
	return errors.As(err, &pv)
}

// IsDependencyUnresolved reports whether err is, or wraps, a DependencyUnresolvedError.
func IsDependencyUnresolved(err error) bool {
	var de *DependencyUnresolvedError
	return errors.As(err, &de)
}
