// Package edit wraps a track.Store with the user-facing mutation
// operations and an append-only change log. Every operation is logically
// atomic: all constraints are checked before the first write, so a failed
// call leaves both the store and the log untouched.
package edit

import (
	"fmt"
	"sync"
	"time"

	"github.com/pointlane/trackedit/internal/track"
)

// Op identifies the kind of a logged change.
type Op string

const (
	OpMove       Op = "move"
	OpVisibility Op = "visibility"
	OpPropagate  Op = "propagate"
	OpCreate     Op = "create"
	OpDelete     Op = "delete"
)

// Change is one applied operation, recorded for export provenance. The
// log carries enough (op, old, new) to support undo later, but undo is
// not a user-facing feature yet.
type Change struct {
	Seq     int               `json:"seq"`
	Op      Op                `json:"op"`
	PointID int64             `json:"point_id"`
	Frame   int               `json:"frame"`      // -1 for point-level ops
	From    int               `json:"from_frame"` // propagate only
	To      int               `json:"to_frame"`   // propagate only
	Old     track.FrameRecord `json:"old"`
	New     track.FrameRecord `json:"new"`
	At      time.Time         `json:"at"`
}

// Engine exposes the editing operations for one store. The point id
// allocator is monotonic for the engine's lifetime: a retired id is never
// handed out again within the session.
type Engine struct {
	mu     sync.Mutex
	store  *track.Store
	nextID int64
	log    []Change
}

// NewEngine creates an engine over the store, seeding the allocator just
// past the highest existing point id.
func NewEngine(store *track.Store) *Engine {
	return &Engine{
		store:  store,
		nextID: store.MaxPointID() + 1,
	}
}

// NewEngineAt creates an engine with an explicit allocator floor, used
// when resuming a session from an artifact that recorded its next id.
// The floor never moves backwards past existing points.
func NewEngineAt(store *track.Store, nextID int64) *Engine {
	if floor := store.MaxPointID() + 1; nextID < floor {
		nextID = floor
	}
	return &Engine{store: store, nextID: nextID}
}

// Store returns the engine's underlying store.
func (e *Engine) Store() *track.Store {
	return e.store
}

// NextPointID returns the id the next CreatePoint call would allocate.
func (e *Engine) NextPointID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextID
}

func (e *Engine) append(c Change) {
	c.Seq = len(e.log)
	c.At = time.Now().UTC()
	e.log = append(e.log, c)
}

// Changes returns a copy of the applied-operation log.
func (e *Engine) Changes() []Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Change, len(e.log))
	copy(out, e.log)
	return out
}

// MovePoint writes new coordinates for one frame. A moved point is by
// definition observed, so visibility is set to true.
func (e *Engine) MovePoint(id int64, frame int, x, y float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.store.Frame(id, frame)
	if err != nil {
		return fmt.Errorf("move point: %w", err)
	}
	now := track.FrameRecord{X: x, Y: y, Visible: true}
	if err := e.store.SetFrame(id, frame, now.X, now.Y, now.Visible); err != nil {
		return fmt.Errorf("move point: %w", err)
	}
	e.append(Change{Op: OpMove, PointID: id, Frame: frame, Old: old, New: now})
	return nil
}

// ToggleVisibility flips the visibility flag for one frame without
// touching the stored coordinates.
func (e *Engine) ToggleVisibility(id int64, frame int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.store.Frame(id, frame)
	if err != nil {
		return fmt.Errorf("toggle visibility: %w", err)
	}
	now := track.FrameRecord{X: old.X, Y: old.Y, Visible: !old.Visible}
	if err := e.store.SetFrame(id, frame, now.X, now.Y, now.Visible); err != nil {
		return fmt.Errorf("toggle visibility: %w", err)
	}
	e.append(Change{Op: OpVisibility, PointID: id, Frame: frame, Old: old, New: now})
	return nil
}

// PropagateVisibility bulk-sets visibility over the closed frame range
// [from, to], used for marking an occlusion or reappearance across a span.
func (e *Engine) PropagateVisibility(id int64, from, to int, visible bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if from > to {
		return fmt.Errorf("propagate visibility: %w: [%d, %d]", track.ErrEmptyRange, from, to)
	}
	frameCount := e.store.Meta().FrameCount
	if from < 0 || to >= frameCount {
		return fmt.Errorf("propagate visibility: %w: [%d, %d] of %d frames",
			track.ErrFrameOutOfRange, from, to, frameCount)
	}
	tr, err := e.store.Trajectory(id)
	if err != nil {
		return fmt.Errorf("propagate visibility: %w", err)
	}

	// All constraints hold; the per-frame writes below cannot fail.
	for frame := from; frame <= to; frame++ {
		rec := tr[frame]
		if err := e.store.SetFrame(id, frame, rec.X, rec.Y, visible); err != nil {
			return fmt.Errorf("propagate visibility: %w", err)
		}
	}
	e.append(Change{
		Op:      OpPropagate,
		PointID: id,
		Frame:   -1,
		From:    from,
		To:      to,
		New:     track.FrameRecord{Visible: visible},
	})
	return nil
}

// CreatePoint allocates the next unused point id and registers a new
// trajectory seeded at (x, y) on every frame, visible only at initialFrame.
func (e *Engine) CreatePoint(initialFrame int, x, y float64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := e.store.Meta()
	if initialFrame < 0 || initialFrame >= meta.FrameCount {
		return 0, fmt.Errorf("create point: %w: frame %d of %d",
			track.ErrFrameOutOfRange, initialFrame, meta.FrameCount)
	}

	records := make(track.Trajectory, meta.FrameCount)
	for i := range records {
		records[i] = track.FrameRecord{X: x, Y: y, Visible: i == initialFrame}
	}

	id := e.nextID
	if err := e.store.AddPoint(id, records); err != nil {
		return 0, fmt.Errorf("create point: %w", err)
	}
	e.nextID++
	e.append(Change{
		Op:      OpCreate,
		PointID: id,
		Frame:   initialFrame,
		New:     track.FrameRecord{X: x, Y: y, Visible: true},
	})
	return id, nil
}

// CreatePoints registers one new point per (x, y) seed, all anchored at
// initialFrame, and returns the allocated ids in seed order. The batch is
// atomic: a rejected batch creates no points, burns no allocator ids, and
// leaves the change log untouched.
func (e *Engine) CreatePoints(initialFrame int, coords [][2]float64) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := e.store.Meta()
	if initialFrame < 0 || initialFrame >= meta.FrameCount {
		return nil, fmt.Errorf("create points: %w: frame %d of %d",
			track.ErrFrameOutOfRange, initialFrame, meta.FrameCount)
	}

	ids := make([]int64, 0, len(coords))
	for i, c := range coords {
		records := make(track.Trajectory, meta.FrameCount)
		for f := range records {
			records[f] = track.FrameRecord{X: c[0], Y: c[1], Visible: f == initialFrame}
		}
		if err := e.store.AddPoint(e.nextID+int64(i), records); err != nil {
			for _, created := range ids {
				_ = e.store.RemovePoint(created)
			}
			return nil, fmt.Errorf("create points: %w", err)
		}
		ids = append(ids, e.nextID+int64(i))
	}

	e.nextID += int64(len(coords))
	for i, id := range ids {
		e.append(Change{
			Op:      OpCreate,
			PointID: id,
			Frame:   initialFrame,
			New:     track.FrameRecord{X: coords[i][0], Y: coords[i][1], Visible: true},
		})
	}
	return ids, nil
}

// DeletePoint removes the point from the store. Any semantic entry for the
// id is preserved and becomes orphaned; callers query orphan status
// explicitly rather than having metadata cascade-deleted.
func (e *Engine) DeletePoint(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, err := e.store.Frame(id, 0)
	if err != nil {
		return fmt.Errorf("delete point: %w", err)
	}
	if err := e.store.RemovePoint(id); err != nil {
		return fmt.Errorf("delete point: %w", err)
	}
	e.append(Change{Op: OpDelete, PointID: id, Frame: -1, Old: old})
	return nil
}
