package track

import (
	"fmt"
	"sync"
)

// FrameRecord is the state of one point at one frame. Coordinates are kept
// even while Visible is false so that toggling visibility back does not
// lose position data.
type FrameRecord struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// Trajectory is the full per-frame record sequence for one point, indexed
// by frame. Its length always equals the video's frame count.
type Trajectory []FrameRecord

// Clone returns an independent copy of the trajectory.
func (tr Trajectory) Clone() Trajectory {
	if tr == nil {
		return nil
	}
	out := make(Trajectory, len(tr))
	copy(out, tr)
	return out
}

// VideoMeta describes the video a store's trajectories are indexed against.
type VideoMeta struct {
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
}

// PointSeed pairs a point id with its initial trajectory, used when
// constructing a store from ingest results or a decoded artifact.
type PointSeed struct {
	ID      int64
	Records Trajectory
}

// Store owns the mapping point id -> trajectory for one loaded video.
// Point ids are stable for the lifetime of the store and listed in
// insertion order.
type Store struct {
	mu     sync.RWMutex
	meta   VideoMeta
	points map[int64]Trajectory
	order  []int64
}

// NewStore creates a store for the given video with the provided initial
// points. Every seed trajectory must have exactly meta.FrameCount records.
func NewStore(meta VideoMeta, seeds []PointSeed) (*Store, error) {
	if meta.FrameCount <= 0 {
		return nil, fmt.Errorf("%w: frame count %d", ErrDimensionMismatch, meta.FrameCount)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("%w: video size %dx%d", ErrDimensionMismatch, meta.Width, meta.Height)
	}

	s := &Store{
		meta:   meta,
		points: make(map[int64]Trajectory, len(seeds)),
		order:  make([]int64, 0, len(seeds)),
	}
	for _, seed := range seeds {
		if len(seed.Records) != meta.FrameCount {
			return nil, fmt.Errorf("%w: point %d has %d records, want %d",
				ErrDimensionMismatch, seed.ID, len(seed.Records), meta.FrameCount)
		}
		if _, exists := s.points[seed.ID]; exists {
			return nil, fmt.Errorf("%w: point %d", ErrDuplicatePoint, seed.ID)
		}
		s.points[seed.ID] = seed.Records.Clone()
		s.order = append(s.order, seed.ID)
	}
	return s, nil
}

// Meta returns the video metadata.
func (s *Store) Meta() VideoMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Len returns the number of active points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// HasPoint reports whether the id is present in the store.
func (s *Store) HasPoint(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[id]
	return ok
}

// PointIDs returns the active point ids in insertion order.
func (s *Store) PointIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// Trajectory returns a copy of the full per-frame record sequence for id.
func (s *Store) Trajectory(id int64) (Trajectory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.points[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPoint, id)
	}
	return tr.Clone(), nil
}

// Frame returns the record for one point at one frame.
func (s *Store) Frame(id int64, frame int) (FrameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.points[id]
	if !ok {
		return FrameRecord{}, fmt.Errorf("%w: %d", ErrUnknownPoint, id)
	}
	if frame < 0 || frame >= s.meta.FrameCount {
		return FrameRecord{}, fmt.Errorf("%w: frame %d of %d", ErrFrameOutOfRange, frame, s.meta.FrameCount)
	}
	return tr[frame], nil
}

// SetFrame overwrites the record for one point at one frame in place.
func (s *Store) SetFrame(id int64, frame int, x, y float64, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.points[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPoint, id)
	}
	if frame < 0 || frame >= s.meta.FrameCount {
		return fmt.Errorf("%w: frame %d of %d", ErrFrameOutOfRange, frame, s.meta.FrameCount)
	}
	tr[frame] = FrameRecord{X: x, Y: y, Visible: visible}
	return nil
}

// AddPoint registers a new point with its full trajectory.
func (s *Store) AddPoint(id int64, records Trajectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.points[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicatePoint, id)
	}
	if len(records) != s.meta.FrameCount {
		return fmt.Errorf("%w: point %d has %d records, want %d",
			ErrDimensionMismatch, id, len(records), s.meta.FrameCount)
	}
	s.points[id] = records.Clone()
	s.order = append(s.order, id)
	return nil
}

// RemovePoint deletes a point from the store. Semantic metadata for the id
// is deliberately untouched; deletion policy is explicit, not cascading.
func (s *Store) RemovePoint(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPoint, id)
	}
	delete(s.points, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// MaxPointID returns the highest id ever still present, or -1 for an empty
// store. Used to seed the edit engine's monotonic allocator.
func (s *Store) MaxPointID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := int64(-1)
	for id := range s.points {
		if id > max {
			max = id
		}
	}
	return max
}

// Snapshot returns a deep copy of the store, safe to mutate or serialize
// without holding up the original.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &Store{
		meta:   s.meta,
		points: make(map[int64]Trajectory, len(s.points)),
		order:  make([]int64, len(s.order)),
	}
	copy(out.order, s.order)
	for id, tr := range s.points {
		out.points[id] = tr.Clone()
	}
	return out
}
