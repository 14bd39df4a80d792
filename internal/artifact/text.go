package artifact

import (
	"fmt"
	"io"
)

// encodeText writes the flat table used for spreadsheet inspection: one
// row per (point, frame), ordered by point insertion order then frame.
// Visibility is flattened to 0/1 and no allocator, semantic, or
// provenance state is carried, which is why this kind cannot be imported.
func encodeText(w io.Writer, snap Snapshot) error {
	if _, err := fmt.Fprintf(w, "# track export, %d points, %d frames, %dx%d @ %.3f fps\n",
		len(snap.Points), snap.Meta.FrameCount, snap.Meta.Width, snap.Meta.Height, snap.Meta.FPS); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "point_id,frame_index,x,y,visible\n"); err != nil {
		return err
	}
	for _, seed := range snap.Points {
		for frame, rec := range seed.Records {
			visible := 0
			if rec.Visible {
				visible = 1
			}
			if _, err := fmt.Fprintf(w, "%d,%d,%g,%g,%d\n",
				seed.ID, frame, rec.X, rec.Y, visible); err != nil {
				return err
			}
		}
	}
	return nil
}
