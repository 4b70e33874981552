package watcher

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/cardex/internal/fileid"
	"github.com/hyperjump/cardex/internal/models"
)

// Pair is a front and back image of one card found in the same directory.
type Pair struct {
	Dir   string
	Name  string
	Front string
	Back  string
}

// ID returns the stable run ID of the pair.
func (p Pair) ID() string { return fileid.PairID(p.Dir, p.Name) }

// Path returns the file for side.
func (p Pair) Path(side models.Side) string {
	if side == models.SideBack {
		return p.Back
	}
	return p.Front
}

type pairKey struct{ dir, name string }

// pairSet collects sides until both are present. A completed pair is
// forgotten; a later change to either file starts a new pair.
type pairSet struct {
	mu      sync.Mutex
	pending map[pairKey]*Pair
}

func newPairSet() *pairSet {
	return &pairSet{pending: make(map[pairKey]*Pair)}
}

// observe records path and returns the pair once both sides are present.
func (s *pairSet) observe(path string) (Pair, bool) {
	name, side, ok := fileid.SplitSide(path)
	if !ok {
		return Pair{}, false
	}
	key := pairKey{dir: filepath.Dir(path), name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.pending[key]
	if !found {
		p = &Pair{Dir: key.dir, Name: name}
		s.pending[key] = p
	}
	if side == models.SideBack {
		p.Back = path
	} else {
		p.Front = path
	}
	if p.Front == "" || p.Back == "" {
		return Pair{}, false
	}
	delete(s.pending, key)
	return *p, true
}

// forget drops path from its pending pair.
func (s *pairSet) forget(path string) {
	name, side, ok := fileid.SplitSide(path)
	if !ok {
		return
	}
	key := pairKey{dir: filepath.Dir(path), name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.pending[key]
	if !found {
		return
	}
	if side == models.SideBack && p.Back == path {
		p.Back = ""
	} else if side == models.SideFront && p.Front == path {
		p.Front = ""
	}
	if p.Front == "" && p.Back == "" {
		delete(s.pending, key)
	}
}

// len returns the number of incomplete pairs.
func (s *pairSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ScanPairs returns the complete pairs under root, ordered by directory and
// name. Subdirectories are included when recursive is set.
func ScanPairs(root string, recursive bool) ([]Pair, error) {
	root = filepath.Clean(root)
	set := newPairSet()
	var pairs []Pair
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if p, ok := set.observe(path); ok {
			pairs = append(pairs, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Dir != pairs[j].Dir {
			return pairs[i].Dir < pairs[j].Dir
		}
		return pairs[i].Name < pairs[j].Name
	})
	return pairs, nil
}
