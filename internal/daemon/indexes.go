// Package daemon watches registered folders while the main process is not
// running and tells it, through the indexes file, which ones changed.
package daemon

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// IndexesFilename is the indexes file inside the index parent directory
	IndexesFilename = "indexes.txt"

	modifiedMarker = "#"
	commentPrefix  = "//"
)

// Folder is one line of the indexes file.
type Folder struct {
	Path     string
	Modified bool
}

// IndexesPath returns the location of the indexes file for an index parent
// directory.
func IndexesPath(dir string) string {
	return filepath.Join(dir, IndexesFilename)
}

// ReadIndexesFile parses the indexes file. Blank lines and lines starting
// with "//" are skipped; a leading "#" marks a folder as modified. A missing
// file yields no folders.
func ReadIndexesFile(path string) ([]Folder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read indexes file: %w", err)
	}

	var folders []Folder
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.TrimSpace(line) == "", strings.HasPrefix(line, commentPrefix):
			continue
		case strings.HasPrefix(line, modifiedMarker):
			folders = append(folders, Folder{Path: line[len(modifiedMarker):], Modified: true})
		default:
			folders = append(folders, Folder{Path: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse indexes file: %w", err)
	}
	return folders, nil
}

// WriteIndexesFile replaces the indexes file atomically.
func WriteIndexesFile(path, header string, folders []Folder) error {
	var buf bytes.Buffer
	if header != "" {
		buf.WriteString(commentPrefix + header + "\n")
	}
	for _, f := range folders {
		if f.Modified {
			buf.WriteString(modifiedMarker)
		}
		buf.WriteString(f.Path)
		buf.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create indexes directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write indexes temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename indexes file: %w", err)
	}
	return nil
}

// WriteRegistered writes the registered folders as unmodified. The main
// process calls it whenever it saves its registry.
func WriteRegistered(dir string, paths []string) error {
	folders := make([]Folder, 0, len(paths))
	for _, p := range paths {
		folders = append(folders, Folder{Path: p})
	}
	return WriteIndexesFile(IndexesPath(dir), " Written by docfetcher", folders)
}

// ModifiedFolders returns the folders the daemon marked as modified.
func ModifiedFolders(dir string) ([]string, error) {
	folders, err := ReadIndexesFile(IndexesPath(dir))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range folders {
		if f.Modified {
			out = append(out, f.Path)
		}
	}
	return out, nil
}
