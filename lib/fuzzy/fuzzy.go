// Package fuzzy resolves free-text queries against tables of labels.
package fuzzy

import (
	"context"
	"sort"
)

// DefaultCutoff is the minimum score a label needs to be considered a match.
const DefaultCutoff = 80

type Match struct {
	// Index is the position of the label in the table it was extracted from.
	Index int
	Label string
	Score int
}

// Extract scores query against every label and returns the ones scoring at least
// cutoff, best first. Equal scores keep table order. limit <= 0 means no limit.
func Extract(query string, labels []string, cutoff, limit int) []Match {
	var matches []Match
	for i, label := range labels {
		score := Score(query, label)
		if score < cutoff {
			continue
		}
		matches = append(matches, Match{Index: i, Label: label, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ExtractOne returns the best match scoring at least cutoff.
func ExtractOne(query string, labels []string, cutoff int) (Match, bool) {
	matches := Extract(query, labels, cutoff, 1)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// Source returns the current records a Resolver searches through.
type Source[T any] func(ctx context.Context) ([]T, error)

type Result[T any] struct {
	Record T
	Score  int
}

// Resolver maps queries to records. The label table is rebuilt from the source on
// every call so results always reflect the latest records the source returns.
type Resolver[T any] struct {
	source Source[T]
	label  func(T) string
}

func NewResolver[T any](source Source[T], label func(T) string) Resolver[T] {
	return Resolver[T]{source: source, label: label}
}

func (r Resolver[T]) Search(ctx context.Context, query string, cutoff, limit int) ([]Result[T], error) {
	records, err := r.source(ctx)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(records))
	for i, rec := range records {
		labels[i] = r.label(rec)
	}

	matches := Extract(query, labels, cutoff, limit)
	results := make([]Result[T], len(matches))
	for i, m := range matches {
		results[i] = Result[T]{Record: records[m.Index], Score: m.Score}
	}
	return results, nil
}

// SearchOne returns the best record scoring at least DefaultCutoff.
func (r Resolver[T]) SearchOne(ctx context.Context, query string) (T, bool, error) {
	results, err := r.Search(ctx, query, DefaultCutoff, 1)
	if err != nil || len(results) == 0 {
		var zero T
		return zero, false, err
	}
	return results[0].Record, true, nil
}
