package filing

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

type fakeDocs struct {
	dart.Client
	payloads map[string][]byte
	calls    int
}

func (f *fakeDocs) Document(_ context.Context, receiptNo string) ([]byte, error) {
	f.calls++
	body, ok := f.payloads[receiptNo]
	if !ok {
		return nil, eris.Errorf("dart: http 404 from /document.xml")
	}
	return body, nil
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		// Pad so the archive clears the minimum size check. Store members
		// uncompressed so the padding actually contributes to archive size.
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(content + strings.Repeat(" ", 2000)))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchExtractsAndCaches(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"20240101000001.xml":   "<TITLE>증권신고서</TITLE>",
		"20240101000001_1.xml": "<TITLE>사업의 내용</TITLE>",
	})
	docs := &fakeDocs{payloads: map[string][]byte{"20240101000001": archive}}
	f := NewFetcher(docs, t.TempDir())

	dir, err := f.Fetch(context.Background(), "20240101000001")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Second fetch must reuse the cache.
	again, err := f.Fetch(context.Background(), "20240101000001")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, 1, docs.calls)
}

func TestFetchTooSmallIsCorrupt(t *testing.T) {
	docs := &fakeDocs{payloads: map[string][]byte{"r1": []byte(`<err>잘못된 키</err>`)}}
	f := NewFetcher(docs, t.TempDir())

	_, err := f.Fetch(context.Background(), "r1")
	var corrupt *resilience.CorruptArchiveError
	require.True(t, eris.As(err, &corrupt))
	assert.Equal(t, "r1", corrupt.ReceiptNo)
	assert.False(t, resilience.IsTransient(err))
}

func TestFetchNotZipIsCorrupt(t *testing.T) {
	docs := &fakeDocs{payloads: map[string][]byte{
		"r2": []byte(strings.Repeat("이것은 집 파일이 아닙니다 ", 100)),
	}}
	f := NewFetcher(docs, t.TempDir())

	_, err := f.Fetch(context.Background(), "r2")
	var corrupt *resilience.CorruptArchiveError
	require.True(t, eris.As(err, &corrupt))
	assert.Equal(t, "not a zip archive", corrupt.Reason)
}

func TestFetchZipSlipRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "../escape.xml", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Repeat("x", 2000)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	base := t.TempDir()
	docs := &fakeDocs{payloads: map[string][]byte{"r3": buf.Bytes()}}
	f := NewFetcher(docs, filepath.Join(base, "filings"))

	_, err = f.Fetch(context.Background(), "r3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal archive path")
	assert.NoFileExists(t, filepath.Join(base, "escape.xml"))
}

func TestLoadDocumentCombinesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte("두번째"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("첫번째"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.pdf"), []byte("pdf"), 0o644))

	combined, err := LoadDocument(dir)
	require.NoError(t, err)
	assert.Less(t, strings.Index(combined, "첫번째"), strings.Index(combined, "두번째"))
	assert.NotContains(t, combined, "pdf")
}

func TestLoadDocumentEmptyDir(t *testing.T) {
	_, err := LoadDocument(t.TempDir())
	assert.Error(t, err)
}
