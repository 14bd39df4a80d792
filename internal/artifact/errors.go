package artifact

import "errors"

var (
	// ErrMalformedArtifact covers truncated, corrupt, or unparseable input.
	ErrMalformedArtifact = errors.New("malformed artifact")

	// ErrVersionMismatch is returned when an artifact declares a schema
	// version newer than this build understands.
	ErrVersionMismatch = errors.New("artifact schema version mismatch")

	// ErrTextImport is returned when asked to import the flat text kind,
	// which drops too much state to reconstruct a session from.
	ErrTextImport = errors.New("flat text artifacts are export-only")

	// ErrUnknownKind is returned when a path matches no artifact kind and
	// the content matches no known header.
	ErrUnknownKind = errors.New("unknown artifact kind")
)
