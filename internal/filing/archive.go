// Package filing fetches registration statement archives and maps their
// contents to the logical sections the extractor works on.
package filing

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// Archives smaller than this are error envelopes, not filings.
const minArchiveBytes = 1000

// Fetcher downloads filing archives into a local cache directory keyed by
// receipt number.
type Fetcher struct {
	dart dart.Client
	dir  string
}

// NewFetcher creates a fetcher caching under dir.
func NewFetcher(client dart.Client, dir string) *Fetcher {
	return &Fetcher{dart: client, dir: dir}
}

// Fetch returns the directory holding the extracted archive for a receipt,
// downloading it when not cached. A download that is not a readable zip
// yields CorruptArchiveError and leaves no cache entry behind.
func (f *Fetcher) Fetch(ctx context.Context, receiptNo string) (string, error) {
	dest := filepath.Join(f.dir, receiptNo)
	if cached(dest) {
		zap.L().Debug("filing: archive cache hit", zap.String("receipt_no", receiptNo))
		return dest, nil
	}

	body, err := f.dart.Document(ctx, receiptNo)
	if err != nil {
		return "", err
	}
	if len(body) < minArchiveBytes {
		return "", &resilience.CorruptArchiveError{
			ReceiptNo: receiptNo,
			Reason:    "response too small to be a filing archive",
		}
	}

	r, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", &resilience.CorruptArchiveError{ReceiptNo: receiptNo, Reason: "not a zip archive"}
	}
	if len(r.File) == 0 {
		return "", &resilience.CorruptArchiveError{ReceiptNo: receiptNo, Reason: "archive is empty"}
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", eris.Wrap(err, "filing: create archive dir")
	}
	for _, member := range r.File {
		if err := extractMember(member, dest); err != nil {
			os.RemoveAll(dest) //nolint:errcheck
			return "", err
		}
	}

	zap.L().Info("filing: archive downloaded",
		zap.String("receipt_no", receiptNo),
		zap.Int("members", len(r.File)),
	)
	return dest, nil
}

// cached reports whether the directory already holds extracted documents.
func cached(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".html", ".htm", ".xml":
			return true
		}
	}
	return false
}

// extractMember writes one zip member under destDir with a zip-slip guard.
func extractMember(f *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return eris.Errorf("filing: illegal archive path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return eris.Wrap(os.MkdirAll(destPath, 0o755), "filing: create directory")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "filing: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrap(err, "filing: open archive member")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrap(err, "filing: create file")
	}
	defer out.Close() //nolint:errcheck

	_, err = io.Copy(out, rc)
	return eris.Wrap(err, "filing: write file")
}

// LoadDocument concatenates the extracted HTML/XML members in name order.
// Registration statements split across several files still need to be
// searched as one text.
func LoadDocument(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "filing: read archive dir")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".html", ".htm", ".xml":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", eris.Errorf("filing: no documents in %s", dir)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", eris.Wrapf(err, "filing: read %s", name)
		}
		b.WriteString("\n<!-- FILE: ")
		b.WriteString(name)
		b.WriteString(" -->\n")
		b.Write(content)
	}
	return b.String(), nil
}
