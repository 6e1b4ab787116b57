package scan

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/termweb-dev/termweb-core/internal/wire"
)

// maxHashWorkers bounds the content-hashing worker pool, per spec.md
// §4.5.1: "Implementations may use a thread pool bounded at 8 workers."
const maxHashWorkers = 8

// Options configures a single directory scan.
type Options struct {
	BasePath string
	Excludes []string
}

// Walk builds the file list for basePath: it walks the tree, applies
// exclude patterns against forward-slash relative paths, emits directory
// entries immediately, and defers content hashing on regular files until
// after the walk completes (spec.md §4.5.1 steps 1-4).
func Walk(opts Options) ([]wire.FileEntry, error) {
	var entries []wire.FileEntry
	var hashTargets []int // indices into entries needing a hash

	err := filepath.Walk(opts.BasePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == opts.BasePath {
				return err
			}
			// spec.md §4.5.4: "File IO error during scan -> skip that
			// entry (hash=0 for unreadable files); continue."
			return nil
		}
		if path == opts.BasePath {
			return nil
		}
		rel, relErr := filepath.Rel(opts.BasePath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		for _, pat := range opts.Excludes {
			if MatchGlob(pat, rel) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if info.IsDir() {
			entries = append(entries, wire.FileEntry{Path: rel, IsDir: true})
			return nil
		}

		entries = append(entries, wire.FileEntry{
			Path:    rel,
			Size:    uint64(info.Size()),
			ModTime: uint64(info.ModTime().Unix()),
		})
		hashTargets = append(hashTargets, len(entries)-1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	hashFiles(opts.BasePath, entries, hashTargets)
	return entries, nil
}

// hashFiles batch-hashes every regular file named by hashTargets using a
// worker pool bounded at maxHashWorkers, per spec.md §4.5.1's deferred
// batch-hash step. A file that fails to open or read is left with hash=0
// rather than aborting the scan.
func hashFiles(basePath string, entries []wire.FileEntry, hashTargets []int) {
	workers := maxHashWorkers
	if len(hashTargets) < workers {
		workers = len(hashTargets)
	}
	if workers == 0 {
		return
	}

	jobs := make(chan int, len(hashTargets))
	for _, idx := range hashTargets {
		jobs <- idx
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				full := filepath.Join(basePath, filepath.FromSlash(entries[idx].Path))
				h, err := HashFile(full)
				if err != nil {
					continue
				}
				mu.Lock()
				entries[idx].Hash = h
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// SortEntries orders entries by path, giving scan results a deterministic
// order independent of filesystem readdir ordering — useful for tests and
// for stable FILE_LIST framing.
func SortEntries(entries []wire.FileEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}
