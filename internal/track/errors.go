package track

import "errors"

// Sentinel errors for trajectory state operations. All are local,
// recoverable conditions: callers match with errors.Is and the store is
// left untouched whenever one of these is returned.
var (
	// ErrUnknownPoint is returned when a point id is not present in the store.
	ErrUnknownPoint = errors.New("unknown point")

	// ErrDuplicatePoint is returned when adding a point id that already exists.
	ErrDuplicatePoint = errors.New("duplicate point")

	// ErrFrameOutOfRange is returned when a frame index falls outside
	// [0, frame_count).
	ErrFrameOutOfRange = errors.New("frame index out of range")

	// ErrEmptyRange is returned when a frame range has from > to.
	ErrEmptyRange = errors.New("empty frame range")

	// ErrDimensionMismatch is returned when trajectory lengths or ingest
	// shapes disagree with the video's frame count.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
