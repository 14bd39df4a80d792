package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact status of a library video.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
}

// LibraryEntry is one video found in the library folder, paired with its
// export status.
type LibraryEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// ScanLibrary lists the video files in videoDir and classifies each as
// completed or pending by probing outputDir for an exported artifact with
// the video's base name. Completed entries sort first, then by name.
func ScanLibrary(videoDir, outputDir string) ([]LibraryEntry, error) {
	dirEntries, err := os.ReadDir(videoDir)
	if err != nil {
		return nil, fmt.Errorf("scan library %s: %w", videoDir, err)
	}

	var entries []LibraryEntry
	for _, de := range dirEntries {
		if de.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		entry := LibraryEntry{
			Name:   de.Name(),
			Path:   filepath.Join(videoDir, de.Name()),
			Status: StatusPending,
		}
		if artifactPath, ok := findArtifact(outputDir, de.Name()); ok {
			entry.Status = StatusCompleted
			entry.ArtifactPath = artifactPath
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Status != entries[j].Status {
			return entries[i].Status == StatusCompleted
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func findArtifact(outputDir, videoName string) (string, bool) {
	base := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	for _, suffix := range []string{".tracks.json", ".trkb"} {
		candidate := filepath.Join(outputDir, base+suffix)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
