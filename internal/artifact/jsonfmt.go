package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/pointlane/trackedit/internal/edit"
	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

const jsonSchemaVersion = 1

// The JSON document keys points and semantic entries by decimal-string
// point id. point_order carries the store's insertion order, which a JSON
// object cannot.
type jsonDocument struct {
	SchemaVersion int                         `json:"schema_version"`
	Video         jsonVideo                   `json:"video"`
	NextPointID   int64                       `json:"next_point_id"`
	PointOrder    []int64                     `json:"point_order"`
	Points        map[string][][3]float64     `json:"points"`
	Semantic      map[string]jsonSemanticInfo `json:"semantic_info,omitempty"`
	Provenance    *jsonProvenance             `json:"provenance,omitempty"`
}

type jsonVideo struct {
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
}

type jsonSemanticInfo struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type jsonProvenance struct {
	ExportedAt time.Time     `json:"exported_at"`
	Changes    []edit.Change `json:"changes"`
}

func encodeJSON(w io.Writer, snap Snapshot) error {
	doc := jsonDocument{
		SchemaVersion: jsonSchemaVersion,
		Video: jsonVideo{
			FrameCount: snap.Meta.FrameCount,
			Width:      snap.Meta.Width,
			Height:     snap.Meta.Height,
			FPS:        snap.Meta.FPS,
		},
		NextPointID: snap.NextPointID,
		Points:      make(map[string][][3]float64, len(snap.Points)),
	}

	for _, seed := range snap.Points {
		doc.PointOrder = append(doc.PointOrder, seed.ID)
		frames := make([][3]float64, len(seed.Records))
		for i, rec := range seed.Records {
			visible := 0.0
			if rec.Visible {
				visible = 1.0
			}
			frames[i] = [3]float64{rec.X, rec.Y, visible}
		}
		doc.Points[strconv.FormatInt(seed.ID, 10)] = frames
	}

	if len(snap.Semantic) > 0 {
		doc.Semantic = make(map[string]jsonSemanticInfo, len(snap.Semantic))
		for _, entry := range snap.Semantic {
			doc.Semantic[strconv.FormatInt(entry.PointID, 10)] = jsonSemanticInfo{
				Label:       entry.Label,
				Description: entry.Description,
			}
		}
	}
	if len(snap.Changes) > 0 || !snap.ExportedAt.IsZero() {
		doc.Provenance = &jsonProvenance{
			ExportedAt: snap.ExportedAt,
			Changes:    snap.Changes,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func decodeJSON(r io.Reader) (Snapshot, error) {
	var doc jsonDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}
	if doc.SchemaVersion > jsonSchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: document schema %d, supported up to %d",
			ErrVersionMismatch, doc.SchemaVersion, jsonSchemaVersion)
	}

	snap := Snapshot{
		Meta: track.VideoMeta{
			FrameCount: doc.Video.FrameCount,
			Width:      doc.Video.Width,
			Height:     doc.Video.Height,
			FPS:        doc.Video.FPS,
		},
		NextPointID: doc.NextPointID,
	}

	order := doc.PointOrder
	if len(order) == 0 && len(doc.Points) > 0 {
		// Older documents without point_order: fall back to sorted keys.
		for key := range doc.Points {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: point key %q", ErrMalformedArtifact, key)
			}
			order = append(order, id)
		}
		slices.Sort(order)
	}

	for _, id := range order {
		frames, ok := doc.Points[strconv.FormatInt(id, 10)]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: point_order lists %d but points has no such key",
				ErrMalformedArtifact, id)
		}
		if len(frames) != doc.Video.FrameCount {
			return Snapshot{}, fmt.Errorf("point %d has %d frames, video declares %d: %w",
				id, len(frames), doc.Video.FrameCount, track.ErrDimensionMismatch)
		}
		records := make(track.Trajectory, len(frames))
		for i, f := range frames {
			records[i] = track.FrameRecord{X: f[0], Y: f[1], Visible: f[2] != 0}
		}
		snap.Points = append(snap.Points, track.PointSeed{ID: id, Records: records})
	}

	if len(doc.Semantic) > 0 {
		ids := make([]int64, 0, len(doc.Semantic))
		for key := range doc.Semantic {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: semantic key %q", ErrMalformedArtifact, key)
			}
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			info := doc.Semantic[strconv.FormatInt(id, 10)]
			snap.Semantic = append(snap.Semantic, semantic.Entry{
				PointID: id, Label: info.Label, Description: info.Description,
			})
		}
	}

	if doc.Provenance != nil {
		snap.ExportedAt = doc.Provenance.ExportedAt
		snap.Changes = doc.Provenance.Changes
	}
	return snap, nil
}
