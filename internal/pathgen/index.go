package pathgen

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// TargetIndex maps target paths to the content hash that owns them. It is
// seeded from existing after-records and extended as a batch is planned,
// so suffixes are assigned in first-seen order and stay stable between
// runs with the same input order.
type TargetIndex struct {
	mu     sync.Mutex
	byPath map[string]string
	byHash map[string]string
}

// NewTargetIndex creates an index from target path -> hash pairs
func NewTargetIndex(existing map[string]string) *TargetIndex {
	ix := &TargetIndex{
		byPath: make(map[string]string, len(existing)),
		byHash: make(map[string]string, len(existing)),
	}
	for path, hash := range existing {
		path = filepath.Clean(path)
		ix.byPath[path] = hash
		ix.byHash[hash] = path
	}
	return ix
}

// Claim reserves path for hash. When path already belongs to hash the same
// path is returned with owned=true. When it belongs to another hash the
// first free "stem_N.ext" (N >= 2) is reserved instead.
func (ix *TargetIndex) Claim(path, hash string) (claimed string, owned bool) {
	path = filepath.Clean(path)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	candidate := path
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		holder, taken := ix.byPath[candidate]
		if !taken {
			ix.byPath[candidate] = hash
			ix.byHash[hash] = candidate
			return candidate, false
		}
		if holder == hash {
			return candidate, true
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
}

// Release drops a reservation made by Claim if hash still owns it
func (ix *TargetIndex) Release(path, hash string) {
	path = filepath.Clean(path)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.byPath[path] == hash {
		delete(ix.byPath, path)
		if ix.byHash[hash] == path {
			delete(ix.byHash, hash)
		}
	}
}

// Owner returns the hash holding path
func (ix *TargetIndex) Owner(path string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	h, ok := ix.byPath[filepath.Clean(path)]
	return h, ok
}

// PathFor returns the path most recently claimed by hash
func (ix *TargetIndex) PathFor(hash string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.byHash[hash]
	return p, ok
}

// Len returns the number of reserved paths
func (ix *TargetIndex) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.byPath)
}
