package artifact

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// Binary layout (all little-endian):
//
//	offset 0   magic "TRKB"
//	offset 4   uint16 schema version
//	offset 6   uint16 reserved
//	           uint32 frameCount, uint32 width, uint32 height
//	           float64 fps
//	           int64 nextPointID
//	           uint32 pointCount
//	           pointCount × { int64 id, frameCount × (float32 x, float32 y, uint8 visible) }
//	           uint32 semanticCount
//	           semanticCount × { int64 id, lpString label, lpString description }
//
// Coordinates are quantised to float32 on write; a binary round trip is
// exact at float32 precision.
const (
	binaryMagic         = "TRKB"
	binarySchemaVersion = uint16(1)

	// Sanity ceilings so a corrupt count field cannot drive allocation.
	maxBinaryPoints    = 1 << 22
	maxBinaryFrames    = 1 << 22
	maxBinaryRecords   = 1 << 26
	maxBinaryStringLen = 1 << 24
)

func encodeBinary(w io.Writer, snap Snapshot) error {
	if _, err := w.Write([]byte(binaryMagic)); err != nil {
		return err
	}
	le := binary.LittleEndian
	for _, v := range []any{
		binarySchemaVersion,
		uint16(0),
		uint32(snap.Meta.FrameCount),
		uint32(snap.Meta.Width),
		uint32(snap.Meta.Height),
		snap.Meta.FPS,
		snap.NextPointID,
		uint32(len(snap.Points)),
	} {
		if err := binary.Write(w, le, v); err != nil {
			return err
		}
	}

	for _, seed := range snap.Points {
		if len(seed.Records) != snap.Meta.FrameCount {
			return fmt.Errorf("point %d: %d records for %d frames: %w",
				seed.ID, len(seed.Records), snap.Meta.FrameCount, track.ErrDimensionMismatch)
		}
		if err := binary.Write(w, le, seed.ID); err != nil {
			return err
		}
		for _, rec := range seed.Records {
			visible := uint8(0)
			if rec.Visible {
				visible = 1
			}
			if err := binary.Write(w, le, float32(rec.X)); err != nil {
				return err
			}
			if err := binary.Write(w, le, float32(rec.Y)); err != nil {
				return err
			}
			if err := binary.Write(w, le, visible); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(w, le, uint32(len(snap.Semantic))); err != nil {
		return err
	}
	for _, entry := range snap.Semantic {
		if err := binary.Write(w, le, entry.PointID); err != nil {
			return err
		}
		if err := writeLPString(w, entry.Label); err != nil {
			return err
		}
		if err := writeLPString(w, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

func decodeBinary(r io.Reader) (Snapshot, error) {
	le := binary.LittleEndian

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Snapshot{}, fmt.Errorf("%w: short header: %v", ErrMalformedArtifact, err)
	}
	if string(magic[:]) != binaryMagic {
		return Snapshot{}, fmt.Errorf("%w: bad magic %q", ErrMalformedArtifact, magic[:])
	}

	var version, reserved uint16
	if err := readAll(r, le, &version, &reserved); err != nil {
		return Snapshot{}, err
	}
	if version > binarySchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: file schema %d, supported up to %d",
			ErrVersionMismatch, version, binarySchemaVersion)
	}

	var frameCount, width, height uint32
	var fps float64
	var nextID int64
	var pointCount uint32
	if err := readAll(r, le, &frameCount, &width, &height, &fps, &nextID, &pointCount); err != nil {
		return Snapshot{}, err
	}
	if frameCount > maxBinaryFrames {
		return Snapshot{}, fmt.Errorf("%w: implausible frame count %d", ErrMalformedArtifact, frameCount)
	}
	if pointCount > maxBinaryPoints {
		return Snapshot{}, fmt.Errorf("%w: implausible point count %d", ErrMalformedArtifact, pointCount)
	}
	if uint64(pointCount)*uint64(frameCount) > maxBinaryRecords {
		return Snapshot{}, fmt.Errorf("%w: %d points over %d frames exceeds the record limit",
			ErrMalformedArtifact, pointCount, frameCount)
	}

	snap := Snapshot{
		Meta: track.VideoMeta{
			FrameCount: int(frameCount),
			Width:      int(width),
			Height:     int(height),
			FPS:        fps,
		},
		NextPointID: nextID,
	}

	for i := uint32(0); i < pointCount; i++ {
		var id int64
		if err := readAll(r, le, &id); err != nil {
			return Snapshot{}, err
		}
		records := make(track.Trajectory, frameCount)
		for f := range records {
			var x, y float32
			var visible uint8
			if err := readAll(r, le, &x, &y, &visible); err != nil {
				return Snapshot{}, err
			}
			records[f] = track.FrameRecord{X: float64(x), Y: float64(y), Visible: visible != 0}
		}
		snap.Points = append(snap.Points, track.PointSeed{ID: id, Records: records})
	}

	var semanticCount uint32
	if err := readAll(r, le, &semanticCount); err != nil {
		return Snapshot{}, err
	}
	if semanticCount > maxBinaryPoints {
		return Snapshot{}, fmt.Errorf("%w: implausible entry count %d", ErrMalformedArtifact, semanticCount)
	}
	for i := uint32(0); i < semanticCount; i++ {
		var id int64
		if err := readAll(r, le, &id); err != nil {
			return Snapshot{}, err
		}
		label, err := readLPString(r)
		if err != nil {
			return Snapshot{}, err
		}
		description, err := readLPString(r)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Semantic = append(snap.Semantic, semantic.Entry{
			PointID: id, Label: label, Description: description,
		})
	}
	return snap, nil
}

func readAll(r io.Reader, order binary.ByteOrder, fields ...any) error {
	for _, f := range fields {
		if err := binary.Read(r, order, f); err != nil {
			return fmt.Errorf("%w: truncated: %v", ErrMalformedArtifact, err)
		}
	}
	return nil
}

func writeLPString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLPString(r io.Reader) (string, error) {
	var n uint32
	if err := readAll(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxBinaryStringLen {
		return "", fmt.Errorf("%w: implausible string length %d", ErrMalformedArtifact, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: truncated string: %v", ErrMalformedArtifact, err)
	}
	return string(buf), nil
}
