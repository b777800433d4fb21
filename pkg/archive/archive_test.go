package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func writeZipFile(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestStoreDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"AGAGE-GCMD_CGO_ch4.nc":    "cgo methane",
		"AGAGE-GCMD_MHD_ch4.nc":    "mhd methane",
		"AGAGE-GCMD_CGO_cfc-11.nc": "cgo cfc",
		".hidden.nc":               "nope",
		"nested/AGAGE-GCMD_x_y.nc": "nested",
		"notes/readme.txt":         "notes",
	})

	s := NewStore(root)
	assert.Equal(t, KindDir, s.Kind())
	assert.True(t, s.Exists())

	files, err := s.List("*_CGO_*.nc", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"AGAGE-GCMD_CGO_cfc-11.nc", "AGAGE-GCMD_CGO_ch4.nc"}, files)

	files, err = s.List("*.nc", false)
	require.NoError(t, err)
	assert.NotContains(t, files, ".hidden.nc")
	assert.Contains(t, files, "nested/AGAGE-GCMD_x_y.nc")

	data, err := s.Open("AGAGE-GCMD_CGO_ch4.nc")
	require.NoError(t, err)
	assert.Equal(t, "cgo methane", string(data))

	_, err = s.Open("missing.nc")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
}

func TestStoreDirMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nowhere"))
	assert.False(t, s.Exists())
	_, err := s.List("*", false)
	require.Error(t, err)
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
}

func TestStoreZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.zip")
	writeZipFile(t, path, map[string]string{
		"AGAGE-GCMD_CGO_ch4.nc": "cgo methane",
		"sub/deeper_file.nc":    "deep",
		".DS_Store":             "junk",
	})

	s := NewStore(path)
	assert.Equal(t, KindZip, s.Kind())

	files, err := s.List("*.nc", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AGAGE-GCMD_CGO_ch4.nc", "sub/deeper_file.nc"}, files)

	data, err := s.Open("*_CGO_ch4.nc")
	require.NoError(t, err)
	assert.Equal(t, "cgo methane", string(data))

	_, err = s.Open("*_MHD_*.nc")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
}

func TestStoreTarGz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	raw := tarGzBytes(t, map[string]string{
		"MHD-ads.95": "year one",
		"MHD-ads.96": "year two",
	})
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	s := NewStore(path)
	assert.Equal(t, KindTarGz, s.Kind())

	files, err := s.List("MHD-ads.*", false)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	data, err := s.Open("MHD-ads.96")
	require.NoError(t, err)
	assert.Equal(t, "year two", string(data))
}

func TestTarGzMembersOrder(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range []string{"b.dat", "a.dat", "c.dat"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: 1, Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	members, err := TarGzMembers(buf.Bytes(), "")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "b.dat", members[0].Name, "archive order is preserved")
	assert.Equal(t, "a.dat", members[1].Name)
}

func TestListFlatten(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"top_a.csv":         "a",
		"top_b.csv":         "b",
		"deeper/nested.csv": "c",
	})

	s := NewStore(root)
	files, err := s.List("*.csv", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top_a.csv", "top_b.csv"}, files)
}

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		name       string
		network    string
		instrument string
		site       string
		species    string
		extra      string
		version    string
		want       string
	}{
		{"plain", "AGAGE", "", "CGO", "ch4", "", "20240930", "agage_cgo_ch4_20240930.nc"},
		{"instrument", "agage", "gcmd", "CGO", "ch4", "", "20240930", "agage-gcmd_cgo_ch4_20240930.nc"},
		{"extra", "agage", "", "MHD", "cfc-11", "git-baseline", "20240930", "agage_mhd_cfc-11_git-baseline-20240930.nc"},
		{"extra underscore", "agage", "", "MHD", "cfc-11", "monthly_", "20240930", "agage_mhd_cfc-11_monthly-20240930.nc"},
		{"extra hyphen kept", "agage", "", "MHD", "cfc-11", "monthly-", "20240930", "agage_mhd_cfc-11_monthly-20240930.nc"},
		{"version spaces", "agage", "", "CGO", "ch4", "", "2024 09 30", "agage_cgo_ch4_20240930.nc"},
		{"no version", "agage", "", "CGO", "ch4", "", "", "agage_cgo_ch4_.nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutputFilename(tt.network, tt.instrument, tt.site, tt.species, tt.extra, tt.version)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArchiveSuffix(t *testing.T) {
	assert.Equal(t, "archive-csv.zip", ArchiveSuffix("archive.zip", "-csv"))
	assert.Equal(t, "folder-csv/", ArchiveSuffix("folder/", "-csv"))
	assert.Equal(t, "folder-csv", ArchiveSuffix("folder", "-csv"))
	assert.Equal(t, "archive.zip", ArchiveSuffix("archive.zip", ""))
}

func TestWriterZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.zip")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write("ch4", "agage_cgo_ch4_20240930.nc", []byte("data")))
	require.NoError(t, w.Write("ch4/baseline-flags", "agage_cgo_ch4_git-baseline-20240930.nc", []byte("flags")))

	found, err := w.Match("ch4/agage_cgo_ch4*.nc")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = w.Match("ch4/agage_mhd_*.nc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, w.Close())

	s := NewStore(path)
	data, err := s.Open("ch4/agage_cgo_ch4_20240930.nc")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestWriterZipAppendAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.zip")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write("ch4", "first.nc", []byte("one")))
	require.NoError(t, w.Close())

	w, err = NewWriter(path)
	require.NoError(t, err)

	// entries from the earlier run are still visible and preserved
	found, err := w.Match("ch4/first.nc")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, w.Write("ch4", "second.nc", []byte("two")))
	require.NoError(t, w.Close())

	s := NewStore(path)
	files, err := s.List("ch4/*.nc", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ch4/first.nc", "ch4/second.nc"}, files)
}

func TestWriterDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")

	w, err := NewWriter(root)
	require.NoError(t, err)
	require.NoError(t, w.Write("ch4", "agage_cgo_ch4_20240930.nc", []byte("data")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(root, "ch4", "agage_cgo_ch4_20240930.nc"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	found, err := w.Match("ch4/agage_cgo*.nc")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWriterCopyIn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(src, []byte("about this archive"), 0o644))

	path := filepath.Join(dir, "out.zip")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.CopyIn(src))
	require.NoError(t, w.Close())

	data, err := NewStore(path).Open("README.md")
	require.NoError(t, err)
	assert.Equal(t, "about this archive", string(data))
}

func TestDeleteZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.zip")
	writeZipFile(t, path, map[string]string{"a.nc": "x"})

	require.NoError(t, Delete(path, dir, "agage"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting a missing archive is fine
	require.NoError(t, Delete(path, dir, "agage"))
}

func TestDeleteDirSafetyCheck(t *testing.T) {
	dataDir := t.TempDir()
	out := filepath.Join(dataDir, "agage", "output")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "ch4"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "ch4", "a.nc"), []byte("x"), 0o644))

	require.NoError(t, Delete(out, dataDir, "agage"))
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "contents removed, directory kept")

	// a directory outside data/<network> is refused
	stray := filepath.Join(dataDir, "elsewhere", "output")
	require.NoError(t, os.MkdirAll(stray, 0o755))
	err = Delete(stray, dataDir, "agage")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))
}

func TestCreateEmpty(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "out.zip")
	require.NoError(t, CreateEmpty(zipPath))
	files, err := NewStore(zipPath).List("*", false)
	require.NoError(t, err)
	assert.Empty(t, files)

	// an existing archive is left alone
	writeZipFile(t, zipPath, map[string]string{"keep.nc": "x"})
	require.NoError(t, CreateEmpty(zipPath))
	files, err = NewStore(zipPath).List("*", false)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	dirPath := filepath.Join(dir, "outdir")
	require.NoError(t, CreateEmpty(dirPath))
	info, err := os.Stat(dirPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
