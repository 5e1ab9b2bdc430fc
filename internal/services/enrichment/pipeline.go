// Package enrichment runs the per-record search, extract and merge loop over a table,
// checkpointing the output after every record.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/services/extraction"
	"github.com/ternarybob/enricher/internal/table"
)

// errEmptyQuery marks a record with neither name nor company
var errEmptyQuery = errors.New("record has no name or company to search")

// Searcher is the extraction capability the pipeline drives
type Searcher interface {
	Search(ctx context.Context, query extraction.Query, first bool) error
	Extract(ctx context.Context) (*models.ExtractionResult, error)
}

// Waiter paces consecutive searches
type Waiter interface {
	Wait(ctx context.Context) error
}

// ProgressFunc receives the number of processed records after each checkpoint
type ProgressFunc func(progress, total int) error

// Config wires a pipeline
type Config struct {
	Searcher    Searcher
	Categorizer *extraction.Categorizer
	Selectors   models.SelectorConfig
	Pacer       Waiter
	OutputPath  string
	OnProgress  ProgressFunc
	Logger      arbor.ILogger
}

// Pipeline enriches the records of one table in input order
type Pipeline struct {
	searcher    Searcher
	categorizer *extraction.Categorizer
	selectors   models.SelectorConfig
	pacer       Waiter
	outputPath  string
	onProgress  ProgressFunc
	logger      arbor.ILogger
}

func NewPipeline(config Config) *Pipeline {
	categorizer := config.Categorizer
	if categorizer == nil {
		categorizer = extraction.NewCategorizer()
	}
	return &Pipeline{
		searcher:    config.Searcher,
		categorizer: categorizer,
		selectors:   config.Selectors,
		pacer:       config.Pacer,
		outputPath:  config.OutputPath,
		onProgress:  config.OnProgress,
		logger:      config.Logger,
	}
}

// columns locates the name and company inputs of each record
type columns struct {
	name    int
	company int
}

func (p *Pipeline) resolveColumns(tbl *table.Table) (columns, error) {
	cols := columns{name: p.selectors.NameIndex(), company: p.selectors.CompanyIndex()}
	var missing []string

	if p.selectors.NameColumn != "" {
		if idx, ok := tbl.Column(p.selectors.NameColumn); ok {
			cols.name = idx
		} else {
			missing = append(missing, "FULL_NAME_COLUMN")
		}
	}
	if p.selectors.CompanyColumn != "" {
		if idx, ok := tbl.Column(p.selectors.CompanyColumn); ok {
			cols.company = idx
		} else {
			missing = append(missing, "COMPANY_NAME_COLUMN")
		}
	}

	if len(missing) > 0 {
		return cols, &models.ConfigurationError{
			Fields: missing,
			Err:    fmt.Errorf("column not found in header %v", tbl.Header),
		}
	}
	return cols, nil
}

// Run processes every record. Record failures land in the notes column and do not
// stop the run; a failed checkpoint or a cancelled ctx does.
func (p *Pipeline) Run(ctx context.Context, tbl *table.Table) error {
	cols, err := p.resolveColumns(tbl)
	if err != nil {
		return err
	}

	total := tbl.Len()
	if total == 0 {
		if err := table.WriteFile(p.outputPath, tbl); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	searches := 0
	for i := 0; i < total; i++ {
		rec := tbl.Record(i)
		query := extraction.Query{
			Name:    strings.TrimSpace(rec.At(cols.name)),
			Company: strings.TrimSpace(rec.At(cols.company)),
		}

		p.logger.Info().
			Int("record", i+1).
			Int("total", total).
			Str("name", query.Name).
			Str("company", query.Company).
			Msg("Processing record")

		searched, err := p.process(ctx, rec, query, searches == 0)
		if searched {
			searches++
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			recErr := &models.RecordError{Index: i, Err: err}
			MarkFailed(rec, recErr)
			p.logger.Warn().Err(err).Int("record", i+1).Msg("Record failed, continuing")
		}

		if err := table.WriteFile(p.outputPath, tbl); err != nil {
			return fmt.Errorf("checkpoint after record %d failed: %w", i+1, err)
		}

		if p.onProgress != nil {
			if err := p.onProgress(i+1, total); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to report progress")
			}
		}

		if searched && i < total-1 && p.pacer != nil {
			if err := p.pacer.Wait(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Pipeline) process(ctx context.Context, rec table.Record, query extraction.Query, first bool) (bool, error) {
	if query.Name == "" && query.Company == "" {
		return false, errEmptyQuery
	}

	if err := p.searcher.Search(ctx, query, first); err != nil {
		return true, err
	}

	result, err := p.searcher.Extract(ctx)
	if err != nil {
		return true, fmt.Errorf("extraction failed: %w", err)
	}

	enrichment := p.categorizer.Categorize(result)
	Merge(rec, enrichment)

	p.logger.Debug().
		Str("source", string(result.Source)).
		Int("emails", len(result.Emails)).
		Int("phones", len(result.Phones)).
		Bool("work_email_found", enrichment.WorkEmailFound).
		Msg("Record enriched")

	return true, nil
}
