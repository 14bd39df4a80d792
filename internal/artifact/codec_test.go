package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pointlane/trackedit/internal/edit"
	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// testSnapshot keeps coordinates float32-exact so the binary kind round
// trips without quantisation differences.
func testSnapshot() Snapshot {
	return Snapshot{
		Meta:        track.VideoMeta{FrameCount: 3, Width: 640, Height: 480, FPS: 30},
		NextPointID: 7,
		Points: []track.PointSeed{
			{ID: 5, Records: track.Trajectory{
				{X: 10, Y: 20, Visible: true},
				{X: 10.5, Y: 20.25, Visible: false},
				{X: 11, Y: 21, Visible: true},
			}},
			{ID: 2, Records: track.Trajectory{
				{X: 100, Y: 200, Visible: true},
				{X: 101, Y: 201, Visible: true},
				{X: 102, Y: 202, Visible: false},
			}},
		},
		Semantic: []semantic.Entry{
			{PointID: 5, Label: "nose", Description: "tip of the nose"},
			{PointID: 2, Label: "tail", Description: ""},
		},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	want := testSnapshot()

	var buf bytes.Buffer
	if err := Encode(&buf, KindBinary, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf, KindBinary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("binary round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	want := testSnapshot()
	want.ExportedAt = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	want.Changes = []edit.Change{
		{Seq: 0, Op: edit.OpMove, PointID: 5, Frame: 1,
			Old: track.FrameRecord{X: 10.5, Y: 20.25},
			New: track.FrameRecord{X: 12, Y: 22, Visible: true},
			At:  time.Date(2026, 8, 28, 11, 59, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, KindJSON, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf, KindJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONKeepsInsertionOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, KindJSON, testSnapshot()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf, KindJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Points[0].ID != 5 || got.Points[1].ID != 2 {
		t.Errorf("point order = [%d, %d], want [5, 2]", got.Points[0].ID, got.Points[1].ID)
	}
}

func TestBinaryRejectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, KindBinary, testSnapshot()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	full := buf.Bytes()

	for _, cut := range []int{2, 6, len(full) / 2, len(full) - 1} {
		_, err := Decode(bytes.NewReader(full[:cut]), KindBinary)
		if !errors.Is(err, ErrMalformedArtifact) {
			t.Errorf("cut at %d: err = %v, want ErrMalformedArtifact", cut, err)
		}
	}
}

func TestBinaryRejectsBadMagic(t *testing.T) {
	_, err := Decode(strings.NewReader("NOPE....."), KindBinary)
	if !errors.Is(err, ErrMalformedArtifact) {
		t.Fatalf("err = %v, want ErrMalformedArtifact", err)
	}
}

func TestBinaryRejectsFutureVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(binaryMagic)
	binary.Write(&buf, binary.LittleEndian, uint16(binarySchemaVersion+1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	_, err := Decode(&buf, KindBinary)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestBinaryRejectsImplausibleCounts(t *testing.T) {
	// A tiny file whose header promises absurd dimensions must be rejected
	// before the decoder allocates anything for them.
	header := func(frameCount, pointCount uint32) *bytes.Buffer {
		var buf bytes.Buffer
		buf.WriteString(binaryMagic)
		for _, v := range []any{
			binarySchemaVersion,
			uint16(0),
			frameCount,
			uint32(640),
			uint32(480),
			float64(30),
			int64(1),
			pointCount,
			int64(0), // first point id, so the decoder reaches the frame loop
		} {
			binary.Write(&buf, binary.LittleEndian, v)
		}
		return &buf
	}

	for name, buf := range map[string]*bytes.Buffer{
		"frame count":    header(1<<28, 1),
		"point count":    header(1, maxBinaryPoints+1),
		"record product": header(1<<20, 1<<20),
	} {
		_, err := Decode(buf, KindBinary)
		if !errors.Is(err, ErrMalformedArtifact) {
			t.Errorf("%s: err = %v, want ErrMalformedArtifact", name, err)
		}
	}
}

func TestJSONRejectsFutureVersion(t *testing.T) {
	doc := `{"schema_version": 99, "video": {"frame_count": 1, "width": 1, "height": 1}}`
	_, err := Decode(strings.NewReader(doc), KindJSON)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestJSONRejectsShapeDisagreement(t *testing.T) {
	doc := `{
		"schema_version": 1,
		"video": {"frame_count": 3, "width": 10, "height": 10, "fps": 30},
		"point_order": [0],
		"points": {"0": [[1, 1, 1], [2, 2, 1]]}
	}`
	_, err := Decode(strings.NewReader(doc), KindJSON)
	if !errors.Is(err, track.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want track.ErrDimensionMismatch", err)
	}
}

func TestTextIsExportOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, KindText, testSnapshot()); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "# track export") {
		t.Errorf("text export missing comment header:\n%s", out)
	}
	if !strings.Contains(out, "point_id,frame_index,x,y,visible\n") {
		t.Errorf("text export missing column header:\n%s", out)
	}
	if !strings.Contains(out, "5,1,10.5,20.25,0\n") {
		t.Errorf("text export missing occluded row:\n%s", out)
	}

	if _, err := Decode(&buf, KindText); !errors.Is(err, ErrTextImport) {
		t.Fatalf("text import err = %v, want ErrTextImport", err)
	}
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		path string
		want Kind
		ok   bool
	}{
		{"session.trkb", KindBinary, true},
		{"cat.tracks.json", KindJSON, true},
		{"cat.JSON", KindJSON, true},
		{"dump.csv", KindText, true},
		{"dump.txt", KindText, true},
		{"session.bin", "", false},
	}
	for _, tc := range cases {
		got, err := DetectKind(tc.path)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("DetectKind(%q) = (%v, %v), want %v", tc.path, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownKind) {
			t.Errorf("DetectKind(%q) err = %v, want ErrUnknownKind", tc.path, err)
		}
	}
}

func TestSniffKind(t *testing.T) {
	if k, _ := SniffKind([]byte("TRKB\x01\x00")); k != KindBinary {
		t.Errorf("binary sniff = %v", k)
	}
	if k, _ := SniffKind([]byte("  {\"schema")); k != KindJSON {
		t.Errorf("json sniff = %v", k)
	}
	if k, _ := SniffKind([]byte("# track export")); k != KindText {
		t.Errorf("text sniff = %v", k)
	}
	if _, err := SniffKind([]byte("garbage")); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("garbage sniff err = %v, want ErrUnknownKind", err)
	}
}

func TestExportImportFile(t *testing.T) {
	dir := t.TempDir()
	want := testSnapshot()

	for _, name := range []string{"session.trkb", "session.tracks.json"} {
		path := filepath.Join(dir, name)
		if err := ExportFile(path, want); err != nil {
			t.Fatalf("ExportFile(%s): %v", name, err)
		}
		got, err := ImportFile(path)
		if err != nil {
			t.Fatalf("ImportFile(%s): %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestExportFileDoesNotClobberOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.trkb")
	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	bad := testSnapshot()
	bad.Points[0].Records = bad.Points[0].Records[:1] // wrong length

	if err := ExportFile(path, bad); err == nil {
		t.Fatal("ExportFile with malformed snapshot must fail")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "existing" {
		t.Errorf("existing artifact was clobbered: %q, %v", data, err)
	}
}

// End-to-end: edit one frame, export, reload, then delete the point.
func TestEditExportReloadScenario(t *testing.T) {
	meta := track.VideoMeta{FrameCount: 5, Width: 640, Height: 480, FPS: 30}
	records := make(track.Trajectory, 5)
	for i := range records {
		records[i] = track.FrameRecord{X: 10, Y: 10, Visible: true}
	}
	store, err := track.NewStore(meta, []track.PointSeed{{ID: 1, Records: records}})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	engine := edit.NewEngine(store)

	if err := engine.MovePoint(1, 2, 50, 60); err != nil {
		t.Fatalf("MovePoint: %v", err)
	}
	tr, err := store.Trajectory(1)
	if err != nil {
		t.Fatalf("Trajectory: %v", err)
	}
	if tr[2] != (track.FrameRecord{X: 50, Y: 60, Visible: true}) {
		t.Fatalf("frame 2 = %+v, want (50, 60, visible)", tr[2])
	}
	for _, frame := range []int{0, 1, 3, 4} {
		if tr[frame] != (track.FrameRecord{X: 10, Y: 10, Visible: true}) {
			t.Fatalf("frame %d = %+v, want untouched", frame, tr[frame])
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, KindJSON, Capture(store, nil, engine)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	snap, err := Decode(&buf, KindJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reloaded, _, _, err := Restore(snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := reloaded.Trajectory(1)
	if err != nil {
		t.Fatalf("reloaded Trajectory: %v", err)
	}
	if diff := cmp.Diff(tr, got); diff != "" {
		t.Fatalf("reloaded trajectory mismatch (-want +got):\n%s", diff)
	}

	if err := store.RemovePoint(1); err != nil {
		t.Fatalf("RemovePoint: %v", err)
	}
	if _, err := store.Trajectory(1); !errors.Is(err, track.ErrUnknownPoint) {
		t.Fatalf("trajectory after remove: %v, want ErrUnknownPoint", err)
	}
}

func TestCaptureRestore(t *testing.T) {
	meta := track.VideoMeta{FrameCount: 2, Width: 320, Height: 240, FPS: 24}
	store, err := track.NewStore(meta, []track.PointSeed{
		{ID: 0, Records: track.Trajectory{{X: 1, Y: 1, Visible: true}, {X: 2, Y: 2, Visible: true}}},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	index := semantic.NewIndex()
	index.Set(0, "ear", "left ear")
	engine := edit.NewEngineAt(store, 12)

	snap := Capture(store, index, engine)
	store2, index2, engine2, err := Restore(snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if diff := cmp.Diff(store.PointIDs(), store2.PointIDs()); diff != "" {
		t.Errorf("point ids (-want +got):\n%s", diff)
	}
	rec, err := store2.Frame(0, 1)
	if err != nil || rec.X != 2 {
		t.Errorf("restored frame = %+v, %v", rec, err)
	}
	entry, err := index2.Get(0)
	if err != nil || entry.Label != "ear" {
		t.Errorf("restored entry = %+v, %v", entry, err)
	}
	if engine2.NextPointID() != 12 {
		t.Errorf("restored next id = %d, want 12", engine2.NextPointID())
	}
}
