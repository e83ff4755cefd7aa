package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cbcr-finder/internal/ledger"
	"github.com/JakeFAU/cbcr-finder/internal/storage"
	"github.com/JakeFAU/cbcr-finder/internal/storage/memory"
)

type failingStore struct {
	storage.Store
	err error
}

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store := memory.NewBlobStore()
	l, err := ledger.Load(context.Background(), store, "CbCRs/metadata.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	require.NoError(t, ledger.Save(context.Background(), store, "CbCRs/metadata.csv", l))
	data, err := store.Get(context.Background(), "CbCRs/metadata.csv")
	require.NoError(t, err)
	assert.Equal(t, "target,period,url,filename,scope,query,status\n", string(data))
}

func TestLoadPropagatesOtherErrors(t *testing.T) {
	_, err := ledger.Load(context.Background(), failingStore{err: errors.New("denied")}, "x.csv")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := memory.NewBlobStore()
	l := ledger.New(ledger.Row{
		Target: "example", Period: "2023", URL: "https://www.example.com/cbcr.pdf",
		Filename: "cbcr.pdf", Scope: "batch-1", Query: "Acme tax 2023 filetype:pdf", Status: ledger.StatusOK,
	})
	l.Append(ledger.Row{Target: "other", Period: "2023", URL: "https://x.com/a,b.pdf", Status: "HTTP 404"})
	require.NoError(t, ledger.Save(context.Background(), store, "m.csv", l))

	got, err := ledger.Load(context.Background(), store, "m.csv")
	require.NoError(t, err)
	assert.Equal(t, l.Rows(), got.Rows())
}

func TestParseMigratesLegacyHeader(t *testing.T) {
	legacy := "company,year,url,filename,folder,extra\n" +
		"acme,2022,https://acme.com/r.pdf,r.pdf,,ignored\n" +
		"beta,2021,https://beta.com/s.pdf,s.pdf,q1,ignored\n"

	l, err := ledger.Parse([]byte(legacy))
	require.NoError(t, err)
	rows := l.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, ledger.Row{Target: "acme", Period: "2022", URL: "https://acme.com/r.pdf", Filename: "r.pdf"}, rows[0])
	assert.Equal(t, "q1", rows[1].Scope)

	encoded, err := l.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "target,period,url,filename,scope,query,status\n")
}

func TestParseTolerantInputs(t *testing.T) {
	l, err := ledger.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	l, err = ledger.Parse([]byte("\ufeffurl\nhttps://a.com/x.pdf\n"))
	require.NoError(t, err)
	assert.True(t, l.Contains("https://a.com/x.pdf", false))

	_, err = ledger.Parse([]byte("company,year\nacme,2022\n"))
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	l := ledger.New(
		ledger.Row{URL: "https://a.com/ok.pdf", Status: ledger.StatusOK},
		ledger.Row{URL: "https://a.com/failed.pdf", Status: "timeout"},
	)

	tests := []struct {
		name        string
		url         string
		retryFailed bool
		want        bool
	}{
		{"stored", "https://a.com/ok.pdf", false, true},
		{"stored with retry", "https://a.com/ok.pdf", true, true},
		{"failed", "https://a.com/failed.pdf", false, true},
		{"failed with retry", "https://a.com/failed.pdf", true, false},
		{"unknown", "https://a.com/new.pdf", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Contains(tt.url, tt.retryFailed))
		})
	}

	l.Append(ledger.Row{URL: "https://a.com/failed.pdf", Status: ledger.StatusOK})
	assert.True(t, l.Contains("https://a.com/failed.pdf", true))
}

func TestRowsReturnsCopy(t *testing.T) {
	l := ledger.New(ledger.Row{URL: "u"})
	rows := l.Rows()
	rows[0].URL = "changed"
	assert.Equal(t, "u", l.Rows()[0].URL)
}
