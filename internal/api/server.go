// Package api exposes the editing engine over HTTP. Handlers validate
// first and mutate second, so an error response always means the session
// state is unchanged.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pointlane/trackedit/internal/artifact"
	"github.com/pointlane/trackedit/internal/catalog"
	"github.com/pointlane/trackedit/internal/config"
	"github.com/pointlane/trackedit/internal/monitoring"
	"github.com/pointlane/trackedit/internal/report"
	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/session"
	"github.com/pointlane/trackedit/internal/track"
)

type Server struct {
	manager  *session.Manager
	cat      *catalog.Catalog
	frames   session.FrameSource
	cfg      *config.EditorConfig
	videoDir string
}

// NewServer wires the HTTP surface. cat and frames may be nil; the
// routes that need them fail with 503 instead.
func NewServer(manager *session.Manager, cat *catalog.Catalog, frames session.FrameSource,
	cfg *config.EditorConfig, videoDir string) *Server {
	if cfg == nil {
		cfg = config.EmptyEditorConfig()
	}
	return &Server{
		manager:  manager,
		cat:      cat,
		frames:   frames,
		cfg:      cfg,
		videoDir: videoDir,
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/session/ingest", s.ingest)
	mux.HandleFunc("/api/session/load", s.load)
	mux.HandleFunc("/api/session/seek", s.seek)
	mux.HandleFunc("/api/session/merge", s.mergeManualPoints)
	mux.HandleFunc("/api/session/export", s.export)
	mux.HandleFunc("/api/points", s.listPoints)
	mux.HandleFunc("/api/point", s.showPoint)
	mux.HandleFunc("/api/point/nearest", s.nearestPoint)
	mux.HandleFunc("/api/point/move", s.movePoint)
	mux.HandleFunc("/api/point/visibility", s.toggleVisibility)
	mux.HandleFunc("/api/point/propagate", s.propagateVisibility)
	mux.HandleFunc("/api/point/create", s.createPoint)
	mux.HandleFunc("/api/point/delete", s.deletePoint)
	mux.HandleFunc("/api/semantic", s.semanticEntry)
	mux.HandleFunc("/api/semantic/orphans", s.semanticOrphans)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/changes", s.showChanges)
	mux.HandleFunc("/api/library", s.showLibrary)
	mux.HandleFunc("/api/report", s.showReport)
	return mux
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %vms", lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeError maps the domain sentinels onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, track.ErrUnknownPoint),
		errors.Is(err, semantic.ErrNoSemanticEntry),
		errors.Is(err, catalog.ErrSessionNotFound),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrUnknownVideo):
		status = http.StatusNotFound
	case errors.Is(err, track.ErrDuplicatePoint):
		status = http.StatusConflict
	case errors.Is(err, track.ErrFrameOutOfRange),
		errors.Is(err, track.ErrEmptyRange),
		errors.Is(err, track.ErrDimensionMismatch),
		errors.Is(err, artifact.ErrMalformedArtifact),
		errors.Is(err, artifact.ErrVersionMismatch),
		errors.Is(err, artifact.ErrTextImport),
		errors.Is(err, artifact.ErrUnknownKind):
		status = http.StatusBadRequest
	}
	s.writeJSONError(w, status, err.Error())
}

func (s *Server) currentSession(w http.ResponseWriter) (*session.Session, bool) {
	sess, err := s.manager.Current()
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type sessionInfo struct {
	ID           string          `json:"id"`
	VideoPath    string          `json:"video_path"`
	CreatedAt    time.Time       `json:"created_at"`
	CurrentFrame int             `json:"current_frame"`
	PointCount   int             `json:"point_count"`
	Meta         track.VideoMeta `json:"meta"`
}

func (s *Server) sessionInfo(sess *session.Session) sessionInfo {
	return sessionInfo{
		ID:           sess.ID,
		VideoPath:    sess.VideoPath,
		CreatedAt:    sess.CreatedAt,
		CurrentFrame: sess.CurrentFrame(),
		PointCount:   sess.Store().Len(),
		Meta:         sess.Store().Meta(),
	}
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	s.writeJSON(w, s.sessionInfo(sess))
}

type ingestRequest struct {
	VideoPath string                     `json:"video_path"`
	Meta      *track.VideoMeta           `json:"meta,omitempty"`
	Raw       [][]session.RawObservation `json:"raw"`
	PointIDs  []int64                    `json:"point_ids,omitempty"`
	Threshold *float64                   `json:"threshold,omitempty"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	meta := track.VideoMeta{}
	if req.Meta != nil {
		meta = *req.Meta
	} else if s.frames != nil {
		probed, err := s.frames.Probe(req.VideoPath)
		if err != nil {
			s.writeError(w, err)
			return
		}
		meta = probed
	} else {
		http.Error(w, "meta is required without a frame source", http.StatusBadRequest)
		return
	}

	threshold := s.cfg.GetVisibleThreshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	sess, err := s.manager.Ingest(r.Context(), req.VideoPath, meta, req.Raw, req.PointIDs, threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, s.sessionInfo(sess))
}

type loadRequest struct {
	VideoPath    string `json:"video_path"`
	ArtifactPath string `json:"artifact_path"`
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req loadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.manager.Load(r.Context(), req.VideoPath, req.ArtifactPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, s.sessionInfo(sess))
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Frame int `json:"frame"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := sess.SeekFrame(req.Frame); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]int{"current_frame": sess.CurrentFrame()})
}

func (s *Server) mergeManualPoints(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Points []session.ManualPoint `json:"points"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	ids, err := sess.MergeManualPoints(req.Points)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, map[string][]int64{"point_ids": ids})
}

type exportRequest struct {
	Path string `json:"path"`
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}

	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.GetOutputDir(), path)
	}
	kind, err := artifact.DetectKind(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Export(path); err != nil {
		s.writeError(w, err)
		return
	}

	if s.cat != nil {
		err := s.cat.RecordArtifact(r.Context(), catalog.ArtifactRow{
			SessionID:  sess.ID,
			Path:       path,
			Kind:       string(kind),
			PointCount: sess.Store().Len(),
		})
		if err != nil {
			monitoring.Logf("record artifact: %v", err)
		}
	}
	s.writeJSON(w, map[string]string{"path": path, "kind": string(kind)})
}

// persistSession mirrors the session and its semantic entries into the
// catalog. Persistence failures are logged, not surfaced; the in-memory
// session is the source of truth.
func (s *Server) persistSession(r *http.Request, sess *session.Session) {
	if s.cat == nil {
		return
	}
	err := s.cat.SaveSession(r.Context(), catalog.SessionRow{
		ID:          sess.ID,
		VideoPath:   sess.VideoPath,
		Meta:        sess.Store().Meta(),
		PointCount:  sess.Store().Len(),
		NextPointID: sess.Engine().NextPointID(),
		CreatedAt:   sess.CreatedAt,
	})
	if err != nil {
		monitoring.Logf("save session: %v", err)
		return
	}
	if err := s.cat.ReplaceSemanticEntries(r.Context(), sess.ID, sess.Index().Entries()); err != nil {
		monitoring.Logf("save semantic entries: %v", err)
	}
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	s.writeJSON(w, map[string][]int64{"point_ids": sess.Store().PointIDs()})
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, fmt.Errorf("missing %q parameter", key)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *Server) showPoint(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	id, err := queryInt64(r, "id")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if frameRaw := r.URL.Query().Get("frame"); frameRaw != "" {
		frame, err := strconv.Atoi(frameRaw)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'frame' parameter")
			return
		}
		rec, err := sess.Store().Frame(id, frame)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, rec)
		return
	}

	tr, err := sess.Store().Trajectory(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"point_id": id, "trajectory": tr})
}

// nearestPoint matches a UI click to the closest visible point at the
// current frame, within the configured click radius.
func (s *Server) nearestPoint(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid 'x' or 'y' parameter")
		return
	}
	frame := sess.CurrentFrame()
	if raw := q.Get("frame"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'frame' parameter")
			return
		}
		frame = parsed
	}

	id, rec, found := track.Nearest(sess.Store(), frame, x, y, s.cfg.GetClickRadiusPx())
	if !found {
		s.writeJSONError(w, http.StatusNotFound, "no visible point within click radius")
		return
	}
	s.writeJSON(w, map[string]any{"point_id": id, "record": rec})
}

type moveRequest struct {
	ID    int64   `json:"id"`
	Frame int     `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (s *Server) movePoint(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := sess.Engine().MovePoint(req.ID, req.Frame, req.X, req.Y); err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	rec, _ := sess.Store().Frame(req.ID, req.Frame)
	s.writeJSON(w, rec)
}

func (s *Server) toggleVisibility(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ID    int64 `json:"id"`
		Frame int   `json:"frame"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := sess.Engine().ToggleVisibility(req.ID, req.Frame); err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	rec, _ := sess.Store().Frame(req.ID, req.Frame)
	s.writeJSON(w, rec)
}

func (s *Server) propagateVisibility(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ID      int64 `json:"id"`
		From    int   `json:"from_frame"`
		To      int   `json:"to_frame"`
		Visible bool  `json:"visible"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := sess.Engine().PropagateVisibility(req.ID, req.From, req.To, req.Visible); err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, map[string]any{"point_id": req.ID, "from_frame": req.From, "to_frame": req.To, "visible": req.Visible})
}

func (s *Server) createPoint(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Frame *int    `json:"frame,omitempty"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if sess.Store().Len() >= s.cfg.GetMaxPoints() {
		s.writeJSONError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("point limit %d reached", s.cfg.GetMaxPoints()))
		return
	}

	frame := sess.CurrentFrame()
	if req.Frame != nil {
		frame = *req.Frame
	}
	id, err := sess.Engine().CreatePoint(frame, req.X, req.Y)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, map[string]any{"point_id": id, "frame": frame})
}

func (s *Server) deletePoint(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := sess.Engine().DeletePoint(req.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.persistSession(r, sess)
	s.writeJSON(w, map[string]any{
		"point_id": req.ID,
		"orphaned": sess.Index().IsOrphaned(req.ID, sess.Store().HasPoint),
	})
}

func (s *Server) semanticEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		id, err := queryInt64(r, "id")
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		entry, err := sess.Index().Get(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, entry)

	case http.MethodPost:
		var req semantic.Entry
		if !decodeBody(w, r, &req) {
			return
		}
		sess.Index().Set(req.PointID, req.Label, req.Description)
		s.persistSession(r, sess)
		entry, _ := sess.Index().Get(req.PointID)
		s.writeJSON(w, entry)

	case http.MethodDelete:
		id, err := queryInt64(r, "id")
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess.Index().Remove(id)
		s.persistSession(r, sess)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) semanticOrphans(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	orphans := sess.Index().Orphans(sess.Store().HasPoint)
	if orphans == nil {
		orphans = []int64{}
	}
	s.writeJSON(w, map[string][]int64{"orphans": orphans})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	s.writeJSON(w, map[string]any{
		"points":   track.SummarizeAll(sess.Store()),
		"semantic": sess.Index().CountFor(sess.Store().PointIDs()),
	})
}

func (s *Server) showChanges(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	s.writeJSON(w, map[string]any{"changes": sess.Engine().Changes()})
}

func (s *Server) showLibrary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.videoDir == "" {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no video directory configured")
		return
	}
	entries, err := session.ScanLibrary(s.videoDir, s.cfg.GetOutputDir())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []session.LibraryEntry{}
	}
	s.writeJSON(w, map[string][]session.LibraryEntry{"videos": entries})
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteOverview(w, sess.Store(), sess.Index()); err != nil {
		monitoring.Logf("render report: %v", err)
	}
}
