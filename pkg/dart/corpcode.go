package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
)

// CorpEntry is one row of the corp-code master list.
type CorpEntry struct {
	CorpCode  string
	CorpName  string
	StockCode string
}

type corpCodeXML struct {
	List []struct {
		CorpCode  string `xml:"corp_code"`
		CorpName  string `xml:"corp_name"`
		StockCode string `xml:"stock_code"`
	} `xml:"list"`
}

// DownloadCorpCodes fetches the full corp-code master. The endpoint returns
// a zip containing a single XML file; rows without a name are dropped.
func (c *httpClient) DownloadCorpCodes(ctx context.Context) ([]CorpEntry, error) {
	params := url.Values{}
	params.Set("crtfc_key", c.opts.Key)

	body, err := resilience.DoVal(ctx, c.withRetryLog("corp_codes"), func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, "/corpCode.xml", params)
	})
	if err != nil {
		return nil, eris.Wrap(err, "dart: download corp codes")
	}

	xmlData, err := unzipSingle(body)
	if err != nil {
		return nil, eris.Wrap(err, "dart: corp code archive")
	}

	var parsed corpCodeXML
	if err := xml.Unmarshal(xmlData, &parsed); err != nil {
		return nil, eris.Wrap(err, "dart: parse corp code xml")
	}

	entries := make([]CorpEntry, 0, len(parsed.List))
	for _, row := range parsed.List {
		name := strings.TrimSpace(row.CorpName)
		if name == "" {
			continue
		}
		entries = append(entries, CorpEntry{
			CorpCode:  strings.TrimSpace(row.CorpCode),
			CorpName:  name,
			StockCode: strings.TrimSpace(row.StockCode),
		})
	}

	zap.L().Info("dart: corp code master downloaded", zap.Int("entries", len(entries)))
	return entries, nil
}

// unzipSingle extracts the first file from an in-memory zip archive.
func unzipSingle(data []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "open zip")
	}
	if len(r.File) == 0 {
		return nil, eris.New("empty zip")
	}
	rc, err := r.File[0].Open()
	if err != nil {
		return nil, eris.Wrap(err, "open zip entry")
	}
	defer rc.Close() //nolint:errcheck
	return io.ReadAll(rc)
}
