// Package playlist scans a directory for `.rip` tracks and hands the
// broadcast engine a wraparound cursor over them.
package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ripserrors "github.com/alxayo/ripserver/internal/errors"
)

// ErrEmptyPlaylist is returned by Load when dir contains no `.rip` files.
var ErrEmptyPlaylist = fmt.Errorf("playlist: directory contains no .rip files")

// Playlist is an ordered, wraparound cursor over the `.rip` files found in
// a single directory at load time. It never re-scans the directory.
type Playlist struct {
	mu    sync.Mutex
	paths []string
	index int
}

// Load scans dir for regular files (including symlinks that resolve to a
// regular file) whose name ends in ".rip", in os.ReadDir's sorted order.
// It fails with ErrEmptyPlaylist if none are found.
func Load(dir string) (*Playlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ripserrors.NewConfigError("playlist.Load", err)
	}

	var paths []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".rip") {
			continue
		}
		if entry.IsDir() {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(dir, entry.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	if len(paths) == 0 {
		return nil, ripserrors.NewConfigError("playlist.Load", ErrEmptyPlaylist)
	}

	return &Playlist{paths: paths}, nil
}

// Len returns the number of tracks in the playlist.
func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

// Current returns the path of the track under the cursor.
func (p *Playlist) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paths[p.index]
}

// Advance moves the cursor to the next track, wrapping to the first track
// after the last, and returns the new current path.
func (p *Playlist) Advance() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = (p.index + 1) % len(p.paths)
	return p.paths[p.index]
}

// Index returns the cursor's current position.
func (p *Playlist) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}
