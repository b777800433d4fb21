package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Store kinds
const (
	KindDir   = "dir"
	KindZip   = "zip"
	KindTarGz = "tar.gz"
)

// Store reads files out of a data holding that is either a directory tree, a
// zip archive or a gzipped tar archive, with the same listing semantics for
// each. Hidden files are always filtered from listings.
type Store struct {
	root string
	kind string
}

// NewStore wraps a path, classifying it by extension. The path does not have
// to exist yet; List and Open report missing stores as not found.
func NewStore(root string) *Store {
	return &Store{root: root, kind: classify(root)}
}

func classify(p string) string {
	switch {
	case strings.HasSuffix(p, ".zip"):
		return KindZip
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".gtar.gz"), strings.HasSuffix(p, ".tgz"):
		return KindTarGz
	default:
		return KindDir
	}
}

// Root returns the wrapped path
func (s *Store) Root() string {
	return s.root
}

// Kind returns which holding layout the store wraps
func (s *Store) Kind() string {
	return s.kind
}

// Exists reports whether the underlying path is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.root)
	return err == nil
}

// List returns the relative paths matching pattern. Patterns use shell
// wildcards where * also crosses directory separators. Directory entries
// carry a trailing slash. With flatten set, only the entries at the
// shallowest matching depth are returned, which collapses listings of
// archives that nest their content one directory down.
func (s *Store) List(pattern string, flatten bool) ([]string, error) {
	var (
		files []string
		err   error
	)
	switch s.kind {
	case KindZip:
		files, err = s.listZip(pattern)
	case KindTarGz:
		files, err = s.listTarGz(pattern)
	default:
		files, err = s.listDir(pattern)
	}
	if err != nil {
		return nil, err
	}
	if flatten {
		files = shallowest(files)
	}
	return files, nil
}

func (s *Store) listDir(pattern string) ([]string, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to list %s: %v", s.root, err)
	}
	// a directory walk anchors the pattern loosely, so listings come out
	// the same as for an archive holding the same tree
	match, err := compilePattern("*" + pattern)
	if err != nil {
		return nil, err
	}
	var files []string
	walkErr := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := rel
		if d.IsDir() {
			name += "/"
		}
		if match.MatchString(rel) {
			files = append(files, name)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to list %s: %v", s.root, walkErr)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) listZip(pattern string) ([]string, error) {
	match, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	r, err := zip.OpenReader(s.root)
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to open archive %s: %v", s.root, err)
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, ".") {
			continue
		}
		if match.MatchString(strings.TrimSuffix(f.Name, "/")) {
			files = append(files, f.Name)
		}
	}
	return files, nil
}

func (s *Store) listTarGz(pattern string) ([]string, error) {
	match, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.root)
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to open archive %s: %v", s.root, err)
	}
	members, err := TarGzMembers(data, "")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range members {
		if strings.HasPrefix(m.Name, ".") {
			continue
		}
		if match.MatchString(m.Name) {
			files = append(files, m.Name)
		}
	}
	return files, nil
}

// Open reads one file out of the store. Directory stores resolve the exact
// relative path; archive stores treat name as a pattern and return the first
// matching entry, which lets callers open files whose exact archived name
// varies.
func (s *Store) Open(name string) ([]byte, error) {
	switch s.kind {
	case KindZip:
		return s.openZip(name)
	case KindTarGz:
		return s.openTarGz(name)
	default:
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
					"failed to find %s in %s", name, s.root)
			}
			return nil, fmt.Errorf("failed to read %s: %v", name, err)
		}
		return data, nil
	}
}

func (s *Store) openZip(name string) ([]byte, error) {
	match, err := compilePattern(name)
	if err != nil {
		return nil, err
	}
	r, err := zip.OpenReader(s.root)
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to open archive %s: %v", s.root, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !match.MatchString(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in %s: %v", f.Name, s.root, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s in %s: %v", f.Name, s.root, err)
		}
		return data, nil
	}
	return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
		"failed to find %s in %s", name, s.root)
}

func (s *Store) openTarGz(name string) ([]byte, error) {
	data, err := os.ReadFile(s.root)
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to open archive %s: %v", s.root, err)
	}
	members, err := TarGzMembers(data, name)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, pipeline.Errorf(pipeline.KindNotFound, pipeline.Unit{},
			"failed to find %s in %s", name, s.root)
	}
	return members[0].Data, nil
}

// Member is one regular file extracted from a tar archive
type Member struct {
	Name string
	Data []byte
}

// TarGzMembers decompresses a gzipped tar archive held in memory and
// returns its regular files in archive order. An empty pattern returns
// every member.
func TarGzMembers(data []byte, pattern string) ([]Member, error) {
	var match *regexp.Regexp
	if pattern != "" {
		var err error
		if match, err = compilePattern(pattern); err != nil {
			return nil, err
		}
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
			"failed to decompress archive: %v", err)
	}
	defer gz.Close()

	var members []Member
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
				"failed to read tar archive: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if strings.HasPrefix(path.Base(name), ".") {
			continue
		}
		if match != nil && !match.MatchString(name) {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
				"failed to read %s from tar archive: %v", hdr.Name, err)
		}
		members = append(members, Member{Name: name, Data: content})
	}
	return members, nil
}

// shallowest keeps only the entries at the minimum directory depth
func shallowest(files []string) []string {
	if len(files) == 0 {
		return files
	}
	depth := func(f string) int {
		return strings.Count(strings.TrimSuffix(f, "/"), "/")
	}
	min := depth(files[0])
	for _, f := range files[1:] {
		if d := depth(f); d < min {
			min = d
		}
	}
	out := files[:0:0]
	for _, f := range files {
		if depth(f) == min {
			out = append(out, f)
		}
	}
	return out
}

// compilePattern turns a shell wildcard pattern into an anchored regular
// expression. Unlike path matching, * crosses directory separators, which
// matches how archive entry names are filtered.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(string(c)))
				continue
			}
			class := pattern[i : i+end+1]
			if strings.HasPrefix(class, "[!") {
				class = "[^" + class[2:]
			}
			b.WriteString(class)
			i += end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %v", pattern, err)
	}
	return re, nil
}
