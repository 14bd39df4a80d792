// Package track holds the canonical in-memory trajectory state for one
// loaded video session: per-point, per-frame coordinates and visibility,
// plus the video metadata they are indexed against.
//
// A Store is exclusively owned by the edit session that created it. The
// mutex exists so HTTP handlers and an in-flight ingest or export cannot
// race, not to support concurrent editors.
package track
