// Package source identifies input videos for checkpoint keying.
//
// A source is a video file pinned by absolute path and byte size. The
// fingerprint derived from those two fields names the checkpoint record
// and the per-video artifact directory, so editing a video in place (size
// change) or moving it invalidates previous progress without any cleanup.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Source is a resolved input video.
type Source struct {
	// Path is the absolute path to the video file.
	Path string

	// Size is the file size in bytes at resolve time.
	Size int64
}

// Resolve stats the video at path and returns its identity. The path is
// made absolute so the same file yields the same fingerprint regardless
// of the working directory the run started from.
func Resolve(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("source: resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, fmt.Errorf("source: stat %q: %w", abs, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("source: %q is a directory", abs)
	}
	return Source{Path: abs, Size: info.Size()}, nil
}

// Fingerprint returns the first 16 hex characters of the SHA-256 digest
// of "path|size". Stable across runs; changes whenever the file moves or
// its size changes.
func (s Source) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", s.Path, s.Size)))
	return hex.EncodeToString(sum[:])[:16]
}
