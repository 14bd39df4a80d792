// Package session ties one loaded video to its trajectory store, semantic
// index, and edit engine, and owns the switch between videos. A session is
// replaced wholesale, never mutated into a different video's state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pointlane/trackedit/internal/artifact"
	"github.com/pointlane/trackedit/internal/edit"
	"github.com/pointlane/trackedit/internal/monitoring"
	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// ErrNoSession is returned when an operation needs an active session and
// none has been created yet.
var ErrNoSession = errors.New("no active session")

// RawObservation is one frame of raw tracker output for one point before
// thresholding: coordinates plus the model's confidence.
type RawObservation struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// ManualPoint is a user-placed seed for MergeManualPoints.
type ManualPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Session is the editing state for one video.
type Session struct {
	ID        string
	VideoPath string
	CreatedAt time.Time

	store  *track.Store
	index  *semantic.Index
	engine *edit.Engine

	mu           sync.Mutex
	currentFrame int
}

func newSession(videoPath string, store *track.Store, index *semantic.Index, engine *edit.Engine) *Session {
	return &Session{
		ID:        uuid.NewString(),
		VideoPath: videoPath,
		CreatedAt: time.Now().UTC(),
		store:     store,
		index:     index,
		engine:    engine,
	}
}

// Store returns the session's trajectory store.
func (s *Session) Store() *track.Store { return s.store }

// Index returns the session's semantic index.
func (s *Session) Index() *semantic.Index { return s.index }

// Engine returns the session's edit engine.
func (s *Session) Engine() *edit.Engine { return s.engine }

// CurrentFrame returns the frame cursor.
func (s *Session) CurrentFrame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFrame
}

// SeekFrame moves the frame cursor.
func (s *Session) SeekFrame(frame int) error {
	if count := s.store.Meta().FrameCount; frame < 0 || frame >= count {
		return fmt.Errorf("seek: %w: frame %d of %d", track.ErrFrameOutOfRange, frame, count)
	}
	s.mu.Lock()
	s.currentFrame = frame
	s.mu.Unlock()
	return nil
}

// MergeManualPoints creates one new point per seed at the session's
// current frame. Ingested point ids are untouched; the new ids come from
// the engine's allocator and are returned in seed order. A rejected merge
// creates nothing, burns no ids, and shows up nowhere in provenance.
func (s *Session) MergeManualPoints(seeds []ManualPoint) ([]int64, error) {
	coords := make([][2]float64, len(seeds))
	for i, seed := range seeds {
		coords[i] = [2]float64{seed.X, seed.Y}
	}
	ids, err := s.engine.CreatePoints(s.CurrentFrame(), coords)
	if err != nil {
		return nil, fmt.Errorf("merge manual points: %w", err)
	}
	return ids, nil
}

// Snapshot captures the session's full state for export or persistence.
func (s *Session) Snapshot() artifact.Snapshot {
	return artifact.Capture(s.store, s.index, s.engine)
}

// Export writes the session state to path in the kind implied by the
// extension.
func (s *Session) Export(path string) error {
	return artifact.ExportFile(path, s.Snapshot())
}

// Manager holds the active session and swaps it atomically. Builders
// (ingest, artifact load) work on detached state so a failure or a
// cancelled context leaves the previous session untouched.
type Manager struct {
	mu      sync.RWMutex
	current *Session
}

func NewManager() *Manager {
	return &Manager{}
}

// Current returns the active session.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

func (m *Manager) install(s *Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	monitoring.Logf("session %s active for %s (%d points)", s.ID, s.VideoPath, s.store.Len())
}

// Ingest builds a fresh session from raw tracker output. raw is indexed
// [point][frame]; every point must carry exactly meta.FrameCount
// observations or the whole ingest is rejected with ErrDimensionMismatch.
// An observation is visible when its confidence reaches threshold.
// pointIDs may be nil, in which case ids are assigned 0..n-1.
func (m *Manager) Ingest(ctx context.Context, videoPath string, meta track.VideoMeta,
	raw [][]RawObservation, pointIDs []int64, threshold float64) (*Session, error) {

	if pointIDs != nil && len(pointIDs) != len(raw) {
		return nil, fmt.Errorf("ingest: %w: %d ids for %d points",
			track.ErrDimensionMismatch, len(pointIDs), len(raw))
	}

	seeds := make([]track.PointSeed, 0, len(raw))
	for i, observations := range raw {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		if len(observations) != meta.FrameCount {
			return nil, fmt.Errorf("ingest: point index %d has %d observations, want %d: %w",
				i, len(observations), meta.FrameCount, track.ErrDimensionMismatch)
		}

		id := int64(i)
		if pointIDs != nil {
			id = pointIDs[i]
		}
		records := make(track.Trajectory, len(observations))
		for frame, obs := range observations {
			records[frame] = track.FrameRecord{
				X:       obs.X,
				Y:       obs.Y,
				Visible: obs.Confidence >= threshold,
			}
		}
		seeds = append(seeds, track.PointSeed{ID: id, Records: records})
	}

	store, err := track.NewStore(meta, seeds)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	s := newSession(videoPath, store, semantic.NewIndex(), edit.NewEngine(store))
	m.install(s)
	return s, nil
}

// Load rebuilds a session from an exported artifact and makes it active.
func (m *Manager) Load(ctx context.Context, videoPath, artifactPath string) (*Session, error) {
	snap, err := artifact.ImportFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	store, index, engine, err := artifact.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	s := newSession(videoPath, store, index, engine)
	m.install(s)
	return s, nil
}

// Close drops the active session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}
