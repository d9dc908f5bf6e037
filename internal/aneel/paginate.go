package aneel

import (
	"context"
	"fmt"
)

// pageFetcher returns the records at [offset, offset+limit).
type pageFetcher[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// stopPredicate reports whether the page just read was the last one.
type stopPredicate func(got, limit int) bool

// shortPage stops as soon as a page comes back with fewer records than were
// asked for. An exact multiple of limit costs one extra, empty, request.
func shortPage(got, limit int) bool {
	return got < limit
}

// paginate folds pages into one slice, strictly one request at a time. Any
// page error discards everything read so far.
func paginate[T any](ctx context.Context, limit int, fetch pageFetcher[T], stop stopPredicate) ([]T, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("aneel: page size must be positive, got %d", limit)
	}
	var acc []T
	for offset := 0; ; offset += limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		acc = append(acc, page...)
		if stop(len(page), limit) {
			return acc, nil
		}
	}
}
