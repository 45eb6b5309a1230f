// Package ptr provides helper functions for creating pointers to primitive types.
package ptr

// Bool returns a pointer to the given bool value.
func Bool(b bool) *bool { return &b }

// String returns a pointer to the given string value.
func String(s string) *string { return &s }

// Deref returns the value p points to, or the zero value when p is nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
