package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// OutputFilename builds the deterministic dataset filename:
// {network}[-{instrument}]_{site}_{species}_{extra}{version}.nc. The network
// and site are lower-cased, spaces are stripped from the version, and a
// non-empty extra is joined with a trailing hyphen.
func OutputFilename(network, instrument, site, species, extra, version string) string {
	version = strings.ReplaceAll(version, " ", "")

	if extra != "" {
		switch {
		case strings.HasSuffix(extra, "-"):
		case strings.HasSuffix(extra, "_"):
			extra = strings.TrimSuffix(extra, "_") + "-"
		default:
			extra += "-"
		}
	}

	instrumentStr := ""
	if instrument != "" {
		instrumentStr = "-" + instrument
	}

	return fmt.Sprintf("%s%s_%s_%s_%s%s.nc",
		strings.ToLower(network), instrumentStr, strings.ToLower(site),
		species, extra, version)
}

// ArchiveSuffix inserts a suffix into an archive name before the .zip
// extension, or at the end of a folder name
func ArchiveSuffix(name, suffix string) string {
	if suffix == "" {
		return name
	}
	if i := strings.Index(name, ".zip"); i >= 0 {
		return name[:i] + suffix + ".zip"
	}
	if strings.HasSuffix(name, "/") {
		return strings.TrimSuffix(name, "/") + suffix + "/"
	}
	return name + suffix
}

// Writer appends datasets to the output archive, which is either a zip file
// or a directory tree. Appends to a zip are serialized internally; a single
// Writer must be the only process writing the archive.
type Writer struct {
	mu   sync.Mutex
	path string
	kind string

	// zip mode holds the file open for the whole run
	file  *os.File
	zw    *zip.Writer
	names map[string]bool
}

// NewWriter opens the output archive for appending, creating it if needed.
// An existing zip archive is reloaded so earlier runs' entries survive.
// Close must be called to finalize a zip archive.
func NewWriter(path string) (*Writer, error) {
	w := &Writer{path: path, kind: classify(path), names: make(map[string]bool)}
	if w.kind != KindZip {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %v", err)
		}
		return w, nil
	}

	var existing []Member
	if _, err := os.Stat(path); err == nil {
		r, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open output archive %s: %v", path, err)
		}
		for _, f := range r.File {
			if strings.HasSuffix(f.Name, "/") {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("failed to reload %s from output archive: %v", f.Name, err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("failed to reload %s from output archive: %v", f.Name, err)
			}
			existing = append(existing, Member{Name: f.Name, Data: data})
		}
		r.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output archive: %v", err)
	}
	w.file = f
	w.zw = zip.NewWriter(f)
	for _, m := range existing {
		if err := w.writeZip(m.Name, m.Data); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Path returns the archive location
func (w *Writer) Path() string {
	return w.path
}

// Write appends one file under subPath
func (w *Writer) Write(subPath, filename string, data []byte) error {
	name := filename
	if subPath != "" {
		name = subPath + "/" + filename
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.kind == KindZip {
		return w.writeZip(name, data)
	}

	full := filepath.Join(w.path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %v", name, err)
	}
	w.names[name] = true
	return nil
}

func (w *Writer) writeZip(name string, data []byte) error {
	f, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s to output archive: %v", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s to output archive: %v", name, err)
	}
	w.names[name] = true
	return nil
}

// CopyIn places a file from disk at the top of the archive, keeping its base
// name. Used for release notes accompanying the datasets.
func (w *Writer) CopyIn(src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", src, err)
	}
	return w.Write("", filepath.Base(src), data)
}

// Match reports whether any written or pre-existing entry matches pattern
func (w *Writer) Match(pattern string) (bool, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for name := range w.names {
		if re.MatchString(name) {
			return true, nil
		}
	}
	if w.kind != KindZip {
		files, err := NewStore(w.path).List(pattern, false)
		if err != nil {
			if pipeline.KindOf(err) == pipeline.KindNotFound {
				return false, nil
			}
			return false, err
		}
		return len(files) > 0, nil
	}
	return false, nil
}

// Close finalizes the archive. Safe to call on directory mode.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.zw == nil {
		return nil
	}
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize output archive: %v", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close output archive: %v", err)
	}
	w.zw = nil
	w.file = nil
	return nil
}

// Delete removes the output archive before a fresh run. A zip archive is
// unlinked; a directory has its contents removed, and must sit directly
// under the network's data directory.
func Delete(path, dataDir, network string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	if classify(path) == KindZip {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to delete output archive: %v", err)
		}
		return nil
	}

	parent := filepath.Clean(filepath.Join(dataDir, network))
	if filepath.Clean(filepath.Dir(path)) != parent {
		return pipeline.Errorf(pipeline.KindConfiguration, pipeline.Unit{Network: network},
			"output directory %s must sit directly under %s", path, parent)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to list output directory: %v", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return fmt.Errorf("failed to delete %s: %v", e.Name(), err)
		}
	}
	return nil
}

// CreateEmpty ensures the output archive exists: an empty zip file, or the
// directory itself
func CreateEmpty(path string) error {
	if classify(path) == KindZip {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %v", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output archive: %v", err)
		}
		zw := zip.NewWriter(f)
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to create output archive: %v", err)
		}
		return f.Close()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	return nil
}
