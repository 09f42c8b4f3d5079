// Package isoerr declares four sentinel error kinds. No function in
// iso-forge returns or wraps them: the other packages build their errors
// with fmt.Errorf, so errors.Is against these kinds does not match them.
package isoerr

import "errors"

var (
	// ErrInvalidInput is the kind for the case where a caller passes arguments that violate
	// an API precondition (e.g. more than one of an exactly-one-of path set,
	// a name that is empty where required, a negative size).
	ErrInvalidInput = errors.New("iso-forge: invalid input")

	// ErrInvalidISO is the kind for the case where bytes read from an image violate an
	// ISO 9660/Joliet/Rock Ridge/El Torito/UDF structural invariant that this
	// package does not tolerate (see the per-component quirk tables for what
	// is tolerated instead of rejected).
	ErrInvalidISO = errors.New("iso-forge: invalid ISO image")

	// ErrInternal is the kind for the case where an invariant that this package itself is
	// responsible for maintaining is violated - a bug here, not in caller
	// input or the source image.
	ErrInternal = errors.New("iso-forge: internal error")

	// ErrNotFound is the kind for the case where a lookup (path, inode, boot entry, UDF
	// partition) does not resolve to an existing object.
	ErrNotFound = errors.New("iso-forge: not found")
)
