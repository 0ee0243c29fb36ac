package weblink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

type fakeAlternatives struct {
	links []string
	asked string
}

func (f *fakeAlternatives) Enabled() bool { return true }

func (f *fakeAlternatives) GetAlternativeLinks(ctx context.Context, doi string) ([]string, error) {
	f.asked = doi
	return f.links, nil
}

func TestCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/nohead", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tests := []struct {
		path    string
		want    models.Outcome
		wantErr bool
	}{
		{"/ok", models.OutcomeExists, false},
		{"/moved", models.OutcomeExists, false},
		{"/nohead", models.OutcomeExists, false},
		{"/missing", models.OutcomeNotFound, false},
		{"/gone", models.OutcomeNotFound, false},
		{"/unauthorized", models.OutcomeAmbiguous, false},
		{"/down", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := NewFetcher(&config.Config{SourceTimeout: time.Second}, zaptest.NewLogger(t), nil)
			finding, err := f.Check(context.Background(), &models.Work{URL: models.StrPtr(srv.URL + tt.path)})
			if tt.wantErr {
				assert.ErrorIs(t, err, providers.ErrUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, finding.Outcome)
		})
	}
}

func TestDeadLinkSuggestsAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	alts := &fakeAlternatives{links: []string{"https://oa.example/paper.pdf"}}
	f := NewFetcher(&config.Config{SourceTimeout: time.Second}, zaptest.NewLogger(t), alts)
	work := &models.Work{URL: models.StrPtr(srv.URL + "/paper"), DOI: models.StrPtr("10.1/x")}

	finding, err := f.Check(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotFound, finding.Outcome)
	assert.Equal(t, "10.1/x", alts.asked)
	assert.Equal(t, []string{"https://oa.example/paper.pdf"}, finding.Evidence["alternatives"])
}
