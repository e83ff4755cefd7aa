package finder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "Acme tax 2023 filetype:pdf", BuildQuery("Acme", "tax", "2023"))
	assert.Equal(t, "Acme 2023 filetype:pdf", BuildQuery("Acme", "  ", "2023"))
}

func TestEffectiveTarget(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.example.com/cbcr.pdf", "example"},
		{"https://example.com/cbcr.pdf", "example"},
		{"https://IR.Acme.co.uk/r.pdf", "co"},
		{"http://localhost:8080/r.pdf", "localhost"},
		{"https://www.example.com./r.pdf", "example"},
		{"::not a url", "Acme"},
		{"/relative/path.pdf", "Acme"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveTarget(tt.url, "Acme"))
		})
	}
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "AT_T", pathSegment("AT/T"))
	assert.Equal(t, "_", pathSegment(".."))
	assert.Equal(t, "Acme Corp", pathSegment(" Acme Corp "))
}

func TestValidateAcceptsBatch(t *testing.T) {
	in := Input{Targets: []string{"Acme"}, Periods: []string{"2023"}, DateRestrict: "y1", FetchTimeout: time.Second}
	assert.NoError(t, in.Validate())
}

func TestTokenCancel(t *testing.T) {
	token := NewToken()
	assert.False(t, token.Cancelled())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token.Cancel()
		}()
	}
	wg.Wait()

	assert.True(t, token.Cancelled())
	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}
