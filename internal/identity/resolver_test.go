package identity

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/internal/store"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

type fakeStore struct {
	entries     []dart.CorpEntry
	refreshedAt time.Time
	replaced    int
}

func (f *fakeStore) ReplaceCorpCodes(_ context.Context, entries []dart.CorpEntry) error {
	f.entries = entries
	f.refreshedAt = time.Now()
	f.replaced++
	return nil
}

func (f *fakeStore) FindCorpExact(_ context.Context, name string) (*dart.CorpEntry, error) {
	for i := range f.entries {
		if f.entries[i].CorpName == name {
			return &f.entries[i], nil
		}
	}
	return nil, resilience.ErrNotFound
}

func (f *fakeStore) FindCorpPartial(_ context.Context, name string) ([]dart.CorpEntry, error) {
	var out []dart.CorpEntry
	for _, e := range f.entries {
		if contains(e.CorpName, name) || contains(name, e.CorpName) {
			out = append(out, e)
		}
	}
	// listed first
	for i := range out {
		if out[i].StockCode != "" {
			out[0], out[i] = out[i], out[0]
			break
		}
	}
	return out, nil
}

func contains(s, sub string) bool {
	return len(sub) > 0 && len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (f *fakeStore) CorpCodesRefreshedAt(_ context.Context) (time.Time, error) {
	return f.refreshedAt, nil
}

func (f *fakeStore) SaveRun(_ context.Context, _ store.RunRecord) error { return nil }
func (f *fakeStore) ListRuns(_ context.Context, _ int) ([]store.RunRecord, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

type fakeDART struct {
	dart.Client
	master    []dart.CorpEntry
	downloads int
	masterErr error
}

func (f *fakeDART) DownloadCorpCodes(_ context.Context) ([]dart.CorpEntry, error) {
	f.downloads++
	return f.master, f.masterErr
}

var master = []dart.CorpEntry{
	{CorpCode: "00000001", CorpName: "리브스메드", StockCode: "174900"},
	{CorpCode: "00000002", CorpName: "리브스메드홀딩스"},
	{CorpCode: "00000003", CorpName: "산일전기", StockCode: "062040"},
}

func newTestResolver(s *fakeStore, d *fakeDART) *Resolver {
	return NewResolver(Options{Store: s, DART: d, MaxAge: time.Hour, SkipProfile: true})
}

func TestResolveExactFromWarmCache(t *testing.T) {
	s := &fakeStore{entries: master, refreshedAt: time.Now()}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	id, err := r.Resolve(context.Background(), "리브스메드")
	require.NoError(t, err)
	assert.Equal(t, "00000001", id.CorpCode)
	assert.Equal(t, "174900", id.StockCode)
	assert.Zero(t, d.downloads)
}

func TestResolveRefreshesStaleCache(t *testing.T) {
	s := &fakeStore{refreshedAt: time.Now().Add(-2 * time.Hour)}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	id, err := r.Resolve(context.Background(), "산일전기")
	require.NoError(t, err)
	assert.Equal(t, "00000003", id.CorpCode)
	assert.Equal(t, 1, d.downloads)
}

func TestResolveMissTriggersOneRefresh(t *testing.T) {
	// Warm but outdated content: the name only exists after a refresh.
	s := &fakeStore{entries: master[2:], refreshedAt: time.Now()}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	id, err := r.Resolve(context.Background(), "리브스메드")
	require.NoError(t, err)
	assert.Equal(t, "00000001", id.CorpCode)
	assert.Equal(t, 1, d.downloads)
}

func TestResolveIsIdempotent(t *testing.T) {
	s := &fakeStore{entries: master, refreshedAt: time.Now()}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	first, err := r.Resolve(context.Background(), "리브스메드")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "리브스메드")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Zero(t, d.downloads)
}

func TestResolvePartialPrefersListed(t *testing.T) {
	s := &fakeStore{entries: master, refreshedAt: time.Now()}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	id, err := r.Resolve(context.Background(), "주식회사 리브스메드(의료기기)")
	require.NoError(t, err)
	assert.Equal(t, "00000001", id.CorpCode)
}

func TestResolveNotFoundIsFatal(t *testing.T) {
	s := &fakeStore{entries: master, refreshedAt: time.Now()}
	d := &fakeDART{master: master}
	r := newTestResolver(s, d)

	_, err := r.Resolve(context.Background(), "존재하지않는회사")
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrNotFound))
	assert.False(t, resilience.IsTransient(err))
}

func TestRefreshFailurePropagates(t *testing.T) {
	s := &fakeStore{}
	d := &fakeDART{masterErr: eris.New("dart: download corp codes: http 502")}
	r := newTestResolver(s, d)

	_, err := r.Resolve(context.Background(), "리브스메드")
	require.Error(t, err)
	assert.Zero(t, s.replaced)
}
