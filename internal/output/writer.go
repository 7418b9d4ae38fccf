// Package output renders the reconciled record into the run artifacts: the
// raw JSON dump, the markdown research report, and the excel research sheet.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/model"
)

// Writer emits artifacts into a reports directory. File names carry the run
// date and company so repeated runs never clobber older research.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "output: create reports dir")
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

func (w *Writer) artifactPath(company, suffix string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s_%s", w.now().Format("20060102"), company, suffix))
}

// WriteJSON dumps the canonical record verbatim, diagnostics included.
func (w *Writer) WriteJSON(rec *model.CanonicalRecord) (string, error) {
	path := w.artifactPath(rec.Identity.Name, "data.json")
	blob, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "output: marshal record")
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", eris.Wrap(err, "output: write json")
	}
	zap.L().Info("output: wrote json artifact", zap.String("path", path))
	return path, nil
}

// WriteMarkdown saves the analyst report with a data appendix. An empty
// report still produces a file so the appendix survives skipped analysis.
func (w *Writer) WriteMarkdown(rec *model.CanonicalRecord, report string) (string, error) {
	path := w.artifactPath(rec.Identity.Name, "research.md")
	content := renderMarkdown(rec, report, w.now())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrap(err, "output: write markdown")
	}
	zap.L().Info("output: wrote markdown artifact", zap.String("path", path))
	return path, nil
}

// WriteExcel saves the research sheet.
func (w *Writer) WriteExcel(rec *model.CanonicalRecord) (string, error) {
	path := w.artifactPath(rec.Identity.Name, "research.xlsx")
	f, err := buildWorkbook(rec)
	if err != nil {
		return "", err
	}
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "output: save xlsx")
	}
	zap.L().Info("output: wrote excel artifact", zap.String("path", path))
	return path, nil
}
