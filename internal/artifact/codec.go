// Package artifact serializes the full editing state (trajectories,
// semantic entries, allocator position, provenance) to three on-disk
// kinds: a compact binary format, a structured JSON document, and a flat
// text table. Binary and JSON round-trip; the text kind is export-only.
package artifact

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pointlane/trackedit/internal/edit"
	"github.com/pointlane/trackedit/internal/monitoring"
	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// Kind names one of the supported artifact formats.
type Kind string

const (
	KindBinary Kind = "binary"
	KindJSON   Kind = "json"
	KindText   Kind = "text"
)

// Snapshot is the codec's unit of exchange: everything needed to rebuild
// an editing session. Points are listed in store insertion order.
type Snapshot struct {
	Meta        track.VideoMeta
	Points      []track.PointSeed
	NextPointID int64
	Semantic    []semantic.Entry
	Changes     []edit.Change
	ExportedAt  time.Time
}

// Capture builds a detached snapshot of the live session state.
func Capture(store *track.Store, index *semantic.Index, engine *edit.Engine) Snapshot {
	snap := Snapshot{
		Meta:       store.Meta(),
		ExportedAt: time.Now().UTC(),
	}
	for _, id := range store.PointIDs() {
		tr, err := store.Trajectory(id)
		if err != nil {
			continue
		}
		snap.Points = append(snap.Points, track.PointSeed{ID: id, Records: tr})
	}
	if index != nil {
		snap.Semantic = index.Entries()
	}
	if engine != nil {
		snap.NextPointID = engine.NextPointID()
		snap.Changes = engine.Changes()
	} else {
		snap.NextPointID = store.MaxPointID() + 1
	}
	return snap
}

// Restore rebuilds live state from a decoded snapshot.
func Restore(snap Snapshot) (*track.Store, *semantic.Index, *edit.Engine, error) {
	store, err := track.NewStore(snap.Meta, snap.Points)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restore snapshot: %w", err)
	}
	index := semantic.NewIndexFrom(snap.Semantic)
	engine := edit.NewEngineAt(store, snap.NextPointID)
	return store, index, engine, nil
}

// DetectKind classifies a path by extension. It returns ErrUnknownKind
// for extensions outside the three formats.
func DetectKind(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".trkb":
		return KindBinary, nil
	case ".json":
		return KindJSON, nil
	case ".csv", ".txt":
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, path)
}

// SniffKind classifies content by its leading bytes, for import paths
// where the extension is missing or untrusted.
func SniffKind(header []byte) (Kind, error) {
	if len(header) >= 4 && string(header[:4]) == binaryMagic {
		return KindBinary, nil
	}
	for _, b := range header {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return KindJSON, nil
		case '#':
			return KindText, nil
		}
		break
	}
	return "", ErrUnknownKind
}

// Encode writes the snapshot to w in the given kind.
func Encode(w io.Writer, kind Kind, snap Snapshot) error {
	switch kind {
	case KindBinary:
		return encodeBinary(w, snap)
	case KindJSON:
		return encodeJSON(w, snap)
	case KindText:
		return encodeText(w, snap)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Decode reads a snapshot from r. The text kind is rejected with
// ErrTextImport.
func Decode(r io.Reader, kind Kind) (Snapshot, error) {
	switch kind {
	case KindBinary:
		return decodeBinary(r)
	case KindJSON:
		return decodeJSON(r)
	case KindText:
		return Snapshot{}, ErrTextImport
	}
	return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ExportFile writes the snapshot to path, picking the kind from the
// extension. The file is written via a temp sibling and renamed so a
// failed export never clobbers an existing artifact.
func ExportFile(path string, snap Snapshot) error {
	kind, err := DetectKind(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".trackedit-*")
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, kind, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	monitoring.Logf("exported %s artifact to %s (%d points)", kind, path, len(snap.Points))
	return nil
}

// ImportFile reads a snapshot from path. The kind comes from the
// extension, falling back to content sniffing for unknown extensions.
func ImportFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("import %s: %w", path, err)
	}
	defer f.Close()

	kind, err := DetectKind(path)
	if err != nil {
		br := bufio.NewReader(f)
		header, _ := br.Peek(8)
		kind, err = SniffKind(header)
		if err != nil {
			return Snapshot{}, fmt.Errorf("import %s: %w", path, err)
		}
		snap, err := Decode(br, kind)
		if err != nil {
			return Snapshot{}, fmt.Errorf("import %s: %w", path, err)
		}
		return snap, nil
	}

	snap, err := Decode(bufio.NewReader(f), kind)
	if err != nil {
		return Snapshot{}, fmt.Errorf("import %s: %w", path, err)
	}
	monitoring.Logf("imported %s artifact from %s (%d points)", kind, path, len(snap.Points))
	return snap, nil
}
