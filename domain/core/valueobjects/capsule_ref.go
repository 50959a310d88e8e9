package valueobjects

import "errors"

// DefaultCapsuleVersion is assumed whenever a capsule node does not pin one.
const DefaultCapsuleVersion = "latest"

// CapsuleRef identifies a server-side capsule and the version a node is
// pinned to. The zero value means the node carries no capsule identity.
type CapsuleRef struct {
	id      string
	version string
}

// NewCapsuleRef creates a capsule reference. Version may be empty, in which
// case Version() reports the default.
func NewCapsuleRef(id, version string) (CapsuleRef, error) {
	if id == "" {
		return CapsuleRef{}, errors.New("capsule ID cannot be empty")
	}
	return CapsuleRef{id: id, version: version}, nil
}

// ID returns the capsule identifier
func (r CapsuleRef) ID() string {
	return r.id
}

// Version returns the pinned version, or the default when unset
func (r CapsuleRef) Version() string {
	if r.version == "" {
		return DefaultCapsuleVersion
	}
	return r.version
}

// IsZero checks if the reference carries no capsule identity
func (r CapsuleRef) IsZero() bool {
	return r.id == ""
}

// Equals checks if two references point at the same capsule and version
func (r CapsuleRef) Equals(other CapsuleRef) bool {
	return r.id == other.id && r.Version() == other.Version()
}
