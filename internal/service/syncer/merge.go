package syncer

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// MergeNotes reconciles the cached and remote note collections with
// last-write-wins on UpdatedAt. For an id present on both sides the newer
// entity wins; on an exact tie the remote entity wins.
//
// The result holds the union of ids sorted by UpdatedAt descending and is
// never nil. Inputs are not modified.
func MergeNotes(local, remote []domain.Note) []domain.Note {
	return mergeLWW(local, remote,
		func(n domain.Note) uuid.UUID { return n.ID },
		func(n domain.Note) time.Time { return n.UpdatedAt },
	)
}

func mergeLWW[T any](local, remote []T, idOf func(T) uuid.UUID, stampOf func(T) time.Time) []T {
	index := make(map[uuid.UUID]int, len(local)+len(remote))
	out := make([]T, 0, len(local)+len(remote))

	for _, item := range local {
		id := idOf(item)
		if i, ok := index[id]; ok {
			out[i] = item
			continue
		}
		index[id] = len(out)
		out = append(out, item)
	}

	for _, item := range remote {
		id := idOf(item)
		i, ok := index[id]
		if !ok {
			index[id] = len(out)
			out = append(out, item)
			continue
		}
		// >= so that the remote side wins ties.
		if stampOf(item).Compare(stampOf(out[i])) >= 0 {
			out[i] = item
		}
	}

	slices.SortStableFunc(out, func(a, b T) int {
		return stampOf(b).Compare(stampOf(a))
	})
	return out
}
