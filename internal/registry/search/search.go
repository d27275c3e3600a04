// Package search implements the registry's memory-resident tokenized
// package index (C9, §4.8): an ngram-analyzed bleve index over
// scope/name/description, kept current on every publish. The index
// starts empty when the process starts; packages already in the index
// repository are not loaded into it.
package search

import (
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/wisp-pm/wisp/internal/errors"
)

const (
	ngramAnalyzer = "wisp_ngram"
	ngramMin      = 1
	ngramMax      = 12

	// PageSize bounds GET /search results per §6.
	PageSize = 50
)

// Document is one package's searchable summary.
type Document struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
}

// Index wraps a memory-resident bleve index. Writes are serialized by
// mu; readers see the last-committed snapshot (§5 "the search index is
// writer-serialized; readers see snapshots").
type Index struct {
	mu  sync.Mutex
	idx bleve.Index
}

// New builds an empty index with the field mapping of §4.8.
func New() (*Index, error) {
	const op = errors.Op("search.New")

	im := bleve.NewIndexMapping()
	if err := im.AddCustomTokenFilter("wisp_ngram_filter", map[string]interface{}{
		"type": ngram.Name,
		"min":  float64(ngramMin),
		"max":  float64(ngramMax),
	}); err != nil {
		return nil, errors.E(op, err)
	}
	if err := im.AddCustomAnalyzer(ngramAnalyzer, map[string]interface{}{
		"type":      "custom",
		"tokenizer": unicode.Name,
		"token_filters": []string{
			"to_lower",
			"wisp_ngram_filter",
		},
	}); err != nil {
		return nil, errors.E(op, err)
	}

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("id", keywordField())
	doc.AddFieldMappingsAt("scope", ngramField(2.0))
	doc.AddFieldMappingsAt("name", ngramField(3.5))
	doc.AddFieldMappingsAt("description", ngramField(1.0))

	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true
	doc.AddFieldMappingsAt("published_at", dateField)

	im.DefaultMapping = doc

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &Index{idx: idx}, nil
}

func keywordField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = "keyword"
	f.Store = true
	return f
}

func ngramField(boost float64) *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = ngramAnalyzer
	f.Store = true
	_ = boost // applied at query time; bleve field mappings don't carry index-time boost
	return f
}

// Put deletes any prior document for the same id then inserts doc,
// per §4.8 "on publish, delete the term matching id and insert the
// fresh document; commit; reload the reader".
func (idx *Index) Put(doc Document) error {
	const op = errors.Op("search.Index.Put")
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.idx.Delete(doc.ID); err != nil {
		return errors.E(op, err)
	}
	if err := idx.idx.Index(doc.ID, doc); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Result is one search hit's summary, enough to render a listing.
type Result struct {
	ID          string
	Scope       string
	Name        string
	Description string
	PublishedAt time.Time
}

// Search runs a weighted query over scope/name/description and
// returns up to PageSize results ordered by published_at descending
// (§6 "GET /search").
func (idx *Index) Search(query string, offset int) ([]Result, error) {
	const op = errors.Op("search.Index.Search")

	q := bleve.NewDisjunctionQuery(
		weightedMatch(query, "scope", 2.0),
		weightedMatch(query, "name", 3.5),
		weightedMatch(query, "description", 1.0),
	)

	req := bleve.NewSearchRequestOptions(q, PageSize, offset, false)
	req.SortBy([]string{"-published_at"})
	req.Fields = []string{"id", "scope", "name", "description", "published_at"}

	res, err := idx.idx.Search(req)
	if err != nil {
		return nil, errors.E(op, err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{
			ID:          stringField(hit.Fields, "id"),
			Scope:       stringField(hit.Fields, "scope"),
			Name:        stringField(hit.Fields, "name"),
			Description: stringField(hit.Fields, "description"),
			PublishedAt: timeField(hit.Fields, "published_at"),
		})
	}
	return out, nil
}

func weightedMatch(term, field string, boost float64) bleve.Query {
	q := bleve.NewMatchQuery(term)
	q.SetField(field)
	q.SetBoost(boost)
	// The query text itself is not ngram-split: each whole query word is
	// looked up among the field's indexed ngrams.
	q.Analyzer = "standard"
	return q
}

func stringField(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

func timeField(fields map[string]interface{}, key string) time.Time {
	s, _ := fields[key].(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
