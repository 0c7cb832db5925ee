package database

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"calltree/internal/models"
)

const cacheFileName = "function_db.json"

// CacheMetadata identifies the scan a cache snapshot was taken from. A
// snapshot is only valid for the exact source directory it was built
// against.
type CacheMetadata struct {
	CreatedAt       time.Time         `json:"created_at"`
	SourceDirectory string            `json:"source_directory"`
	FileCount       int               `json:"file_count"`
	FileChecksums   map[string]string `json:"file_checksums"`
}

type cachedFile struct {
	Path      string                 `json:"path"`
	Functions []*models.FunctionInfo `json:"functions"`
}

type cacheSnapshot struct {
	Metadata    *CacheMetadata `json:"metadata"`
	Files       []cachedFile   `json:"files"`
	ParseErrors []string       `json:"parse_errors,omitempty"`
}

// CacheFilePath returns where this database persists its snapshot.
func (db *Database) CacheFilePath() string {
	return filepath.Join(db.cacheDir, cacheFileName)
}

// SaveToCache writes the current indices to the cache file. Failures are
// reported as warnings; the in-memory database is always authoritative.
func (db *Database) SaveToCache(verbose bool) {
	paths := make([]string, 0, len(db.FunctionsByFile))
	for path := range db.FunctionsByFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	snapshot := cacheSnapshot{
		Metadata: &CacheMetadata{
			CreatedAt:       time.Now(),
			SourceDirectory: db.SourceDir,
			FileCount:       db.TotalFilesScanned,
			FileChecksums:   make(map[string]string, len(paths)),
		},
		ParseErrors: db.ParseErrors,
	}
	for _, path := range paths {
		snapshot.Files = append(snapshot.Files, cachedFile{
			Path:      path,
			Functions: db.FunctionsByFile[path],
		})
		if sum := computeFileChecksum(path); sum != "" {
			snapshot.Metadata.FileChecksums[path] = sum
		}
	}

	if err := os.MkdirAll(db.cacheDir, 0o755); err != nil {
		fmt.Printf("Warning: failed to create cache directory: %v\n", err)
		return
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		fmt.Printf("Warning: failed to save cache: %v\n", err)
		return
	}
	if err := os.WriteFile(db.CacheFilePath(), data, 0o644); err != nil {
		fmt.Printf("Warning: failed to save cache: %v\n", err)
		return
	}
	if verbose {
		fmt.Printf("Cache saved: %s\n", db.CacheFilePath())
	}
}

// LoadFromCache restores the indices from the cache file. It returns false
// whenever the snapshot is missing, unreadable or was built for a
// different source directory; callers fall back to a full scan.
func (db *Database) LoadFromCache(verbose bool) bool {
	data, err := os.ReadFile(db.CacheFilePath())
	if err != nil {
		return false
	}

	var snapshot cacheSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if verbose {
			fmt.Printf("Warning: failed to load cache: %v\n", err)
		}
		return false
	}
	if snapshot.Metadata == nil {
		if verbose {
			fmt.Println("Cache invalid: missing metadata")
		}
		return false
	}
	if snapshot.Metadata.SourceDirectory != db.SourceDir {
		if verbose {
			fmt.Println("Cache invalid: source directory mismatch")
		}
		return false
	}

	if verbose {
		fmt.Printf("Loading %d files from cache\n", len(snapshot.Files))
	}

	db.resetIndices()
	// Files were saved in sorted path order, so re-adding them restores
	// the original insertion order of every index.
	for _, file := range snapshot.Files {
		for _, fn := range file.Functions {
			db.Add(fn)
		}
	}
	db.TotalFilesScanned = snapshot.Metadata.FileCount
	db.ParseErrors = snapshot.ParseErrors
	return true
}

// ClearCache deletes the cache file. Clearing an absent cache is a no-op.
func (db *Database) ClearCache() error {
	err := os.Remove(db.CacheFilePath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %v", err)
	}
	return nil
}

// computeFileChecksum returns the md5 hex digest of a file's contents, or
// an empty string if the file cannot be read.
func computeFileChecksum(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", md5.Sum(data))
}

// formatFileSize renders byte counts the way scan progress output expects:
// raw bytes below 1K, otherwise two decimals with a K or M suffix.
func formatFileSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2fK", float64(size)/1024)
	default:
		return fmt.Sprintf("%.2fM", float64(size)/(1024*1024))
	}
}
