package enrichment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/services/browser/browsertest"
	"github.com/ternarybob/enricher/internal/services/extraction"
	"github.com/ternarybob/enricher/internal/table"
)

// scriptedSearcher returns canned results keyed by the searched name
type scriptedSearcher struct {
	results   map[string]*models.ExtractionResult
	failures  map[string]error
	current   string
	searches  []extraction.Query
	firstSeen []bool
}

func (s *scriptedSearcher) Search(ctx context.Context, query extraction.Query, first bool) error {
	s.searches = append(s.searches, query)
	s.firstSeen = append(s.firstSeen, first)
	s.current = query.Name
	if err, ok := s.failures[query.Name]; ok {
		return err
	}
	return nil
}

func (s *scriptedSearcher) Extract(ctx context.Context) (*models.ExtractionResult, error) {
	if r, ok := s.results[s.current]; ok {
		return r, nil
	}
	return &models.ExtractionResult{}, nil
}

type countingPacer struct{ waits int }

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return nil
}

var enrichedHeader = []string{"Full Name", "Company Name", "Personal Email", "Other Personal Emails",
	"Work Email", "Work Email Status", "Other Work Emails", "Phone Number", "Other Phone Numbers", "Notes"}

func newTable(rows ...[]string) *table.Table {
	return table.New(append([]string(nil), enrichedHeader...), rows)
}

func readOutput(t *testing.T, path string) *table.Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := table.DecodeCSV(f)
	require.NoError(t, err)
	return tbl
}

func TestPipeline_EnrichesAndCheckpoints(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.csv")
	searcher := &scriptedSearcher{
		results: map[string]*models.ExtractionResult{
			"Jane Doe": {Emails: []string{"a@gmail.com", "b@acme.com", "c@yahoo.com", "d@acme.com"}, Phones: []string{"+14155551234"}},
		},
		failures: map[string]error{
			"Bad Row": errors.New(strings.Repeat("x", 800)),
		},
	}
	pacer := &countingPacer{}
	tbl := newTable(
		[]string{"Jane Doe", "Acme"},
		[]string{"Bad Row", "Nowhere"},
		[]string{"No Result", "Initech", "keep@gmail.com"},
	)

	var progress []int
	pipeline := NewPipeline(Config{
		Searcher:   searcher,
		Selectors:  models.SelectorConfig{},
		Pacer:      pacer,
		OutputPath: out,
		Logger:     arbor.NewLogger(),
		OnProgress: func(done, total int) error {
			progress = append(progress, done)
			checkpoint := readOutput(t, out)
			assert.Equal(t, enrichedHeader, checkpoint.Header)
			assert.Equal(t, total, checkpoint.Len(), "every checkpoint holds every input record")
			return nil
		},
	})

	require.NoError(t, pipeline.Run(context.Background(), tbl))

	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, 2, pacer.waits, "no wait after the last record")
	assert.Equal(t, []bool{true, false, false}, searcher.firstSeen)

	final := readOutput(t, out)
	jane := final.Record(0)
	assert.Equal(t, "a@gmail.com", jane.Get("Personal Email"))
	assert.Equal(t, "c@yahoo.com", jane.Get("Other Personal Emails"))
	assert.Equal(t, "b@acme.com", jane.Get("Work Email"))
	assert.Equal(t, "d@acme.com", jane.Get("Other Work Emails"))
	assert.Equal(t, "Found", jane.Get("Work Email Status"))
	assert.Equal(t, "+14155551234", jane.Get("Phone Number"))

	bad := final.Record(1)
	assert.Len(t, []rune(bad.Get("Notes")), models.MaxNoteLength)
	assert.Equal(t, "", bad.Get("Work Email Status"), "failed records keep their status")

	none := final.Record(2)
	assert.Equal(t, "Not Found", none.Get("Work Email Status"))
	assert.Equal(t, "keep@gmail.com", none.Get("Personal Email"), "empty results do not blank existing values")
}

func TestPipeline_OnlyReservedColumnsPresentAreWritten(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.csv")
	searcher := &scriptedSearcher{results: map[string]*models.ExtractionResult{
		"Jane": {Emails: []string{"jane@corp.io"}, Phones: []string{"+14155551234"}},
	}}
	tbl := table.New([]string{"name", "company", "work_email"}, [][]string{{"Jane", "Corp"}})

	require.NoError(t, NewPipeline(Config{Searcher: searcher, OutputPath: out, Logger: arbor.NewLogger()}).Run(context.Background(), tbl))

	final := readOutput(t, out)
	assert.Equal(t, []string{"name", "company", "work_email"}, final.Header)
	assert.Equal(t, []string{"Jane", "Corp", "jane@corp.io"}, final.Rows[0])
}

func TestPipeline_ColumnsByName(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.csv")
	searcher := &scriptedSearcher{}
	tbl := table.New([]string{"id", "Company", "Name"}, [][]string{{"1", "Acme", "Jane"}})

	selectors := models.SelectorConfig{NameColumn: "name", CompanyColumn: "COMPANY"}
	require.NoError(t, NewPipeline(Config{Searcher: searcher, Selectors: selectors, OutputPath: out, Logger: arbor.NewLogger()}).Run(context.Background(), tbl))

	require.Len(t, searcher.searches, 1)
	assert.Equal(t, extraction.Query{Name: "Jane", Company: "Acme"}, searcher.searches[0])
}

func TestPipeline_UnknownColumnIsConfigurationError(t *testing.T) {
	tbl := table.New([]string{"a", "b"}, [][]string{{"1", "2"}})
	selectors := models.SelectorConfig{NameColumn: "Full Name"}

	err := NewPipeline(Config{Searcher: &scriptedSearcher{}, Selectors: selectors, OutputPath: filepath.Join(t.TempDir(), "o.csv"), Logger: arbor.NewLogger()}).Run(context.Background(), tbl)

	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"FULL_NAME_COLUMN"}, cfgErr.Fields)
}

func TestPipeline_EmptyInputWritesHeader(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.csv")
	tbl := table.New([]string{"Name", "Company"}, nil)

	require.NoError(t, NewPipeline(Config{Searcher: &scriptedSearcher{}, OutputPath: out, Logger: arbor.NewLogger()}).Run(context.Background(), tbl))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Name,Company\n", string(data))
}

func TestPipeline_CheckpointFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0644))

	tbl := newTable([]string{"Jane", "Acme"}, []string{"John", "Globex"})
	searcher := &scriptedSearcher{}
	err := NewPipeline(Config{
		Searcher:   searcher,
		OutputPath: filepath.Join(blocker, "output.csv"),
		Logger:     arbor.NewLogger(),
	}).Run(context.Background(), tbl)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
	assert.Len(t, searcher.searches, 1, "processing stops at the failed checkpoint")
}

func TestPipeline_CancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &scriptedSearcher{}
	tbl := newTable([]string{"Jane", "Acme"}, []string{"John", "Globex"})

	pipeline := NewPipeline(Config{
		Searcher:   searcher,
		OutputPath: filepath.Join(t.TempDir(), "output.csv"),
		Logger:     arbor.NewLogger(),
		OnProgress: func(done, total int) error {
			cancel()
			return nil
		},
		Pacer: NewPacer([]models.RateTier{{Weight: 1, Min: models.Duration(1e9), Max: models.Duration(2e9)}}),
	})

	err := pipeline.Run(ctx, tbl)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, searcher.searches, 1)
}

func TestPipeline_WithExtractionEngine(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.csv")
	selectors := models.SelectorConfig{
		SearchPageURL:   "https://search.example.com",
		NameInput:       "#name",
		CompanyInput:    "#company",
		SubmitButton:    "#submit",
		ResultContainer: ".result",
	}

	page := browsertest.NewPage()
	page.OnSubmit = func(p *browsertest.Page) {
		p.Lock(func() {
			p.Visible[".result"] = true
			p.TextBy[".result"] = "Contact: jane.doe@corp.io, +14155551234"
		})
	}
	engine := extraction.NewEngine(page, selectors, extraction.Timings{}, arbor.NewLogger())
	tbl := newTable([]string{"Jane Doe", "Corp"})

	require.NoError(t, NewPipeline(Config{Searcher: engine, Selectors: selectors, OutputPath: out, Logger: arbor.NewLogger()}).Run(context.Background(), tbl))

	rec := readOutput(t, out).Record(0)
	assert.Equal(t, "jane.doe@corp.io", rec.Get("Work Email"))
	assert.Equal(t, "Found", rec.Get("Work Email Status"))
	assert.Equal(t, "+14155551234", rec.Get("Phone Number"))
}
