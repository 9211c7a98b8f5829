package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// ManifestName is the per-directory checksum manifest filename.
	ManifestName = "checksums.json"

	// manifestSchemaVersion is bumped on breaking manifest format changes.
	manifestSchemaVersion = "1"

	// MissingFile is the sentinel reported as the actual hash of a file
	// that the manifest records but that no longer exists on disk.
	MissingFile = "MISSING"
)

// Manifest records the SHA-256 hash and size of every regular file in one
// recording directory, except the manifest itself. It is always recomputed
// in full, never patched, so it cannot drift from the true file set.
type Manifest struct {
	Version     string               `json:"version"`
	RecordingID string               `json:"recording_id"`
	ComputedAt  time.Time            `json:"computed_at"`
	Files       map[string]FileEntry `json:"files"`
}

// FileEntry is the recorded fingerprint of a single file.
type FileEntry struct {
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Mismatch describes one file whose live content diverges from the manifest.
type Mismatch struct {
	// File is the filename relative to the verified directory.
	File string
	// Expected is the hash recorded in the manifest.
	Expected string
	// Actual is the live hash, or MissingFile if the file is gone.
	Actual string
}

// WriteManifest hashes every regular file in dir (excluding the manifest
// itself) and atomically writes a fresh checksums.json.
func WriteManifest(dir, recordingID string) error {
	files, err := hashDir(dir)
	if err != nil {
		return &StorageError{Op: "checksum", Path: dir, Err: err}
	}

	m := Manifest{
		Version:     manifestSchemaVersion,
		RecordingID: recordingID,
		ComputedAt:  time.Now().UTC(),
		Files:       files,
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &StorageError{Op: "checksum", Path: dir, Err: err}
	}
	data = append(data, '\n')

	return WriteFileAtomic(filepath.Join(dir, ManifestName), data)
}

// ReadManifest loads the manifest for dir. Returns ErrNotFound if the
// directory has no manifest.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StorageError{Op: "read", Path: path, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: ErrStorageCorrupt}
	}
	return &m, nil
}

// VerifyManifest re-hashes every file the manifest records and returns one
// Mismatch per divergent or missing file, sorted by filename. A directory
// without a manifest verifies clean: there is nothing to check against.
// Verification never mutates files; repair is an orchestration decision.
func VerifyManifest(dir string) ([]Mismatch, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var mismatches []Mismatch
	for name, entry := range m.Files {
		actual, err := hashFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				mismatches = append(mismatches, Mismatch{File: name, Expected: entry.SHA256, Actual: MissingFile})
				continue
			}
			return nil, &StorageError{Op: "verify", Path: filepath.Join(dir, name), Err: err}
		}
		if actual != entry.SHA256 {
			mismatches = append(mismatches, Mismatch{File: name, Expected: entry.SHA256, Actual: actual})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].File < mismatches[j].File })
	return mismatches, nil
}

// hashDir hashes every regular file in dir except the manifest.
// Subdirectories are not descended into; a recording directory is flat.
func hashDir(dir string) (map[string]FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]FileEntry)
	for _, e := range entries {
		if e.IsDir() || e.Name() == ManifestName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sum, err := hashFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files[e.Name()] = FileEntry{SHA256: sum, SizeBytes: info.Size()}
	}
	return files, nil
}

// hashFile returns the hex SHA-256 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
