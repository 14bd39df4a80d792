package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlane/trackedit/internal/catalog"
	"github.com/pointlane/trackedit/internal/config"
	"github.com/pointlane/trackedit/internal/session"
	"github.com/pointlane/trackedit/internal/track"
)

type fixture struct {
	server  *Server
	manager *session.Manager
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := session.NewManager()
	outputs := t.TempDir()
	cfg := config.EmptyEditorConfig()
	cfg.OutputDir = &outputs
	srv := NewServer(manager, nil, nil, cfg, "")
	return &fixture{server: srv, manager: manager, mux: srv.ServeMux()}
}

func (f *fixture) ingestSession(t *testing.T, points, frames int) *session.Session {
	t.Helper()
	raw := make([][]session.RawObservation, points)
	for p := range raw {
		raw[p] = make([]session.RawObservation, frames)
		for fr := range raw[p] {
			raw[p][fr] = session.RawObservation{X: float64(10 * p), Y: float64(10 * fr), Confidence: 0.9}
		}
	}
	meta := track.VideoMeta{FrameCount: frames, Width: 640, Height: 480, FPS: 30}
	s, err := f.manager.Ingest(context.Background(), "cat.mp4", meta, raw, nil, 0.5)
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestShowSessionWithoutOne(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/session/ingest", map[string]any{
		"video_path": "cat.mp4",
		"meta":       map[string]any{"frame_count": 3, "width": 640, "height": 480, "fps": 30},
		"raw": [][]map[string]float64{
			{{"x": 1, "y": 1, "confidence": 0.9}, {"x": 2, "y": 2, "confidence": 0.2}, {"x": 3, "y": 3, "confidence": 0.9}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info struct {
		PointCount int `json:"point_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 1, info.PointCount)

	// Confidence 0.2 is below the default threshold.
	sess, err := f.manager.Current()
	require.NoError(t, err)
	frame, err := sess.Store().Frame(0, 1)
	require.NoError(t, err)
	assert.False(t, frame.Visible)
}

func TestIngestShapeMismatchIs400(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/session/ingest", map[string]any{
		"video_path": "cat.mp4",
		"meta":       map[string]any{"frame_count": 3, "width": 640, "height": 480, "fps": 30},
		"raw": [][]map[string]float64{
			{{"x": 1, "y": 1, "confidence": 0.9}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoveEndpoint(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 2, 5)

	rec := f.do(t, http.MethodPost, "/api/point/move", map[string]any{
		"id": 1, "frame": 2, "x": 50.0, "y": 60.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got track.FrameRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, track.FrameRecord{X: 50, Y: 60, Visible: true}, got)
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 1, 5)

	// Unknown point is 404.
	rec := f.do(t, http.MethodPost, "/api/point/move", map[string]any{
		"id": 99, "frame": 0, "x": 1.0, "y": 1.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Frame out of range is 400.
	rec = f.do(t, http.MethodPost, "/api/point/move", map[string]any{
		"id": 0, "frame": 9, "x": 1.0, "y": 1.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Inverted range is 400.
	rec = f.do(t, http.MethodPost, "/api/point/propagate", map[string]any{
		"id": 0, "from_frame": 4, "to_frame": 1, "visible": false,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing semantic entry is 404.
	rec = f.do(t, http.MethodGet, "/api/semantic?id=0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong method is 405.
	rec = f.do(t, http.MethodGet, "/api/point/move", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSemanticLifecycle(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 2, 3)

	rec := f.do(t, http.MethodPost, "/api/semantic", map[string]any{
		"point_id": 1, "label": "paw", "description": "front left",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/semantic?id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paw")

	// Deleting the point orphans the entry.
	rec = f.do(t, http.MethodPost, "/api/point/delete", map[string]any{"id": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orphaned":true`)

	rec = f.do(t, http.MethodGet, "/api/semantic/orphans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[1]")

	rec = f.do(t, http.MethodDelete, "/api/semantic?id=1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateRespectsMaxPoints(t *testing.T) {
	f := newFixture(t)
	two := 2
	f.server.cfg.MaxPoints = &two
	f.ingestSession(t, 2, 3)

	rec := f.do(t, http.MethodPost, "/api/point/create", map[string]any{"x": 1.0, "y": 1.0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNearestEndpoint(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 2, 3)

	rec := f.do(t, http.MethodGet, "/api/point/nearest?x=11&y=1&frame=0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"point_id":1`)

	rec = f.do(t, http.MethodGet, "/api/point/nearest?x=400&y=400&frame=0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportRecordsArtifact(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	require.NoError(t, cat.MigrateUp())

	manager := session.NewManager()
	cfg := config.EmptyEditorConfig()
	cfg.OutputDir = &dir
	srv := NewServer(manager, cat, nil, cfg, "")
	f := &fixture{server: srv, manager: manager, mux: srv.ServeMux()}
	sess := f.ingestSession(t, 1, 3)

	rec := f.do(t, http.MethodPost, "/api/session/export", map[string]any{"path": "cat.trkb"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	artifacts, err := cat.ListArtifacts(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "binary", artifacts[0].Kind)
	assert.True(t, strings.HasSuffix(artifacts[0].Path, "cat.trkb"))

	// Re-import what we exported.
	rec = f.do(t, http.MethodPost, "/api/session/load", map[string]any{
		"video_path": "cat.mp4", "artifact_path": artifacts[0].Path,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 2, 4)

	rec := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Points []struct {
			PointID       int64 `json:"point_id"`
			VisibleFrames int   `json:"visible_frames"`
		} `json:"points"`
		Semantic struct {
			Filled int `json:"filled"`
			Empty  int `json:"empty"`
		} `json:"semantic"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Points, 2)
	assert.Equal(t, 4, body.Points[0].VisibleFrames)
	assert.Equal(t, 2, body.Semantic.Empty)
}

func TestLibraryEndpointWithoutDir(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/library", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t)
	f.ingestSession(t, 1, 3)

	rec := f.do(t, http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Trajectories")
}
