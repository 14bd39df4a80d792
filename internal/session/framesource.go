package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pointlane/trackedit/internal/track"
)

// ErrUnknownVideo is returned when a frame source has no metadata for a
// path.
var ErrUnknownVideo = errors.New("unknown video")

// FrameSource answers metadata questions about video files. Decoding
// pixels is out of scope; callers that have frames get them elsewhere.
type FrameSource interface {
	Probe(path string) (track.VideoMeta, error)
}

// StaticFrameSource is a FrameSource backed by registered metadata, used
// when probing happens out of process (the tracker reports dimensions
// alongside its output) and in tests.
type StaticFrameSource struct {
	mu    sync.RWMutex
	metas map[string]track.VideoMeta
}

func NewStaticFrameSource() *StaticFrameSource {
	return &StaticFrameSource{metas: make(map[string]track.VideoMeta)}
}

// Register stores the metadata for a path, replacing any previous value.
func (fs *StaticFrameSource) Register(path string, meta track.VideoMeta) {
	fs.mu.Lock()
	fs.metas[path] = meta
	fs.mu.Unlock()
}

func (fs *StaticFrameSource) Probe(path string) (track.VideoMeta, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	meta, ok := fs.metas[path]
	if !ok {
		return track.VideoMeta{}, fmt.Errorf("%w: %s", ErrUnknownVideo, path)
	}
	return meta, nil
}
