package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/adapter/localcache"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/config"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

// Migrate applies pending schema migrations to the remote database.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return postgres.Migrate(ctx, pool, logger)
}

// NotesQuery filters CachedNotes. Tag matches a tag by id or by
// case-insensitive name.
type NotesQuery struct {
	Search string
	Tag    string
}

// CachedNotes reads the notes held in the local cache without contacting
// the remote database.
func CachedNotes(ctx context.Context, cachePath string, q NotesQuery) ([]domain.Note, error) {
	cache, err := localcache.Open(ctx, cachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close() //nolint:errcheck

	all, err := cache.Notes(ctx)
	if err != nil {
		return nil, err
	}
	links, err := cache.NoteTags(ctx)
	if err != nil {
		return nil, err
	}

	var tagID *uuid.UUID
	if q.Tag != "" {
		tags, err := cache.Tags(ctx)
		if err != nil {
			return nil, err
		}
		id, ok := resolveTag(tags, q.Tag)
		if !ok {
			return nil, fmt.Errorf("tag %q: %w", q.Tag, domain.ErrNotFound)
		}
		tagID = &id
	}

	return notes.FilterNotes(all, links, tagID, q.Search), nil
}

func resolveTag(tags []domain.Tag, ref string) (uuid.UUID, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, true
	}
	for _, t := range tags {
		if strings.EqualFold(t.Name, ref) {
			return t.ID, true
		}
	}
	return uuid.Nil, false
}

// ResetCache deletes everything held in the local cache.
func ResetCache(ctx context.Context, cachePath string) error {
	cache, err := localcache.Open(ctx, cachePath)
	if err != nil {
		return err
	}
	defer cache.Close() //nolint:errcheck

	return cache.Clear(ctx)
}
