// Package service holds the bookmark and settings use cases. It checks ownership, validates input
// and ties the store to the metadata fetcher, the converters and the batch mutator.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/batch"
	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/convert"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/metadata"
	"aggregat4/linkbook/internal/query"
	"aggregat4/linkbook/internal/urlnorm"
	"aggregat4/linkbook/internal/validation"
)

// BookmarkStore is the persistence the bookmark service needs. *repository.Store implements it.
type BookmarkStore interface {
	batch.Writer
	QueryBookmarks(ctx context.Context, q query.StoreQuery) ([]domain.Bookmark, error)
	AllBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error)
	GetBookmark(ctx context.Context, id string) (domain.Bookmark, error)
	InsertBookmark(ctx context.Context, b domain.Bookmark) (domain.Bookmark, error)
	UpdateBookmark(ctx context.Context, b domain.Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error
	RecordVisit(ctx context.Context, id string, at time.Time) (domain.Bookmark, error)
	DistinctTags(ctx context.Context, userID string) ([]string, error)
	DistinctFolders(ctx context.Context, userID string) ([]string, error)
}

// MetadataFetcher is implemented by *metadata.Fetcher.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string, options metadata.FetchOptions) metadata.PageMetadata
	Preload(ctx context.Context, urls []string)
}

// NewBookmark is the body of an add request.
type NewBookmark struct {
	URL         string   `json:"url" validate:"required,max=2048"`
	Title       string   `json:"title" validate:"max=500"`
	Description string   `json:"description" validate:"max=5000"`
	Tags        []string `json:"tags" validate:"max=100,dive,max=100"`
	Folder      *string  `json:"folder" validate:"omitempty,max=200"`
	Favicon     *string  `json:"favicon" validate:"omitempty,max=2048"`
	ReadLater   bool     `json:"readLater"`
}

type Bookmarks struct {
	store     BookmarkStore
	fetcher   MetadataFetcher
	mutator   *batch.Mutator
	validator *validation.Validator
	tags      cache.Cache[[]string]
	folders   cache.Cache[[]string]
	config    domain.Configuration
	now       cache.Clock
	log       logger.Logger

	preloads sync.WaitGroup
}

// NewBookmarks wires the bookmark service. The tag and folder caches live as long as the service.
func NewBookmarks(store BookmarkStore, fetcher MetadataFetcher, config domain.Configuration, now cache.Clock, log logger.Logger) *Bookmarks {
	if now == nil {
		now = time.Now
	}
	listTTL := time.Duration(config.TagsCacheTTLSeconds) * time.Second
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &Bookmarks{
		store:     store,
		fetcher:   fetcher,
		mutator:   batch.NewMutator(store, config.BatchChunkSize, now, log),
		validator: validation.New(),
		tags:      cache.NewTTL[[]string](listTTL, now),
		folders:   cache.NewTTL[[]string](listTTL, now),
		config:    config,
		now:       now,
		log:       log,
	}
}

// Wait blocks until background metadata preloads have finished.
func (s *Bookmarks) Wait() {
	s.preloads.Wait()
}

// owned loads bookmark id and checks that userID owns it.
func (s *Bookmarks) owned(ctx context.Context, userID, id string) (domain.Bookmark, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Bookmark{}, apperrors.Validation("bookmark id is required")
	}
	if userID == "" {
		return domain.Bookmark{}, apperrors.Validation("user id is required")
	}
	b, err := s.store.GetBookmark(ctx, id)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if b.UserID != userID {
		return domain.Bookmark{}, apperrors.Forbidden("you do not have permission to access this bookmark")
	}
	return b, nil
}

// List returns one page of userID's bookmarks. Bookmarks on the page without a preview image get
// their metadata warmed in the background.
func (s *Bookmarks) List(ctx context.Context, userID string, p query.Params) (query.Page, error) {
	if userID == "" {
		return query.Page{}, apperrors.Validation("user id is required")
	}
	if err := p.Normalize(s.config.BookmarksPageSize, s.config.BookmarksMaxPageSize); err != nil {
		return query.Page{}, err
	}
	q, err := p.StoreQuery(userID)
	if err != nil {
		return query.Page{}, err
	}
	raw, err := s.store.QueryBookmarks(ctx, q)
	if err != nil {
		return query.Page{}, err
	}
	page := query.Shape(raw, p)
	s.preload(page.Items)
	return page, nil
}

func (s *Bookmarks) preload(bookmarks []domain.Bookmark) {
	limit := s.config.PreloadMaxUrls
	if limit <= 0 || s.fetcher == nil {
		return
	}
	urls := make([]string, 0, limit)
	for _, b := range bookmarks {
		if len(urls) == limit {
			break
		}
		if b.Metadata == nil || b.Metadata.OpenGraph.Image == "" {
			urls = append(urls, b.URL)
		}
	}
	if len(urls) == 0 {
		return
	}
	s.preloads.Add(1)
	go func() {
		defer s.preloads.Done()
		s.fetcher.Preload(context.Background(), urls)
	}()
}

func (s *Bookmarks) Get(ctx context.Context, userID, id string) (domain.Bookmark, error) {
	return s.owned(ctx, userID, id)
}

// Add stores a new bookmark for userID. Missing title, description or favicon are filled from the
// page metadata; a failed fetch never fails the add.
func (s *Bookmarks) Add(ctx context.Context, userID string, input NewBookmark) (domain.Bookmark, error) {
	if userID == "" {
		return domain.Bookmark{}, apperrors.Validation("user id is required")
	}
	input.URL = strings.TrimSpace(input.URL)
	if err := s.validator.Validate(input); err != nil {
		return domain.Bookmark{}, err
	}
	now := s.now()
	b := domain.Bookmark{
		UserID:      userID,
		URL:         urlnorm.EnsureScheme(input.URL),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Tags:        cleanTags(input.Tags),
		Folder:      trimmedOrNil(input.Folder),
		Favicon:     trimmedOrNil(input.Favicon),
		ReadLater:   input.ReadLater,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.fetcher != nil && (b.Title == "" || b.Description == "" || b.Favicon == nil) {
		s.enrich(ctx, &b)
	}
	if b.Title == "" {
		b.Title = "Untitled"
	}
	return s.store.InsertBookmark(ctx, b)
}

func (s *Bookmarks) enrich(ctx context.Context, b *domain.Bookmark) {
	md := s.fetcher.Fetch(ctx, b.URL, metadata.FetchOptions{})
	if b.Title == "" {
		b.Title = md.Title
	}
	if md.Degraded() {
		return
	}
	if b.Description == "" {
		b.Description = md.Description
	}
	if b.Favicon == nil && md.Favicon != "" {
		favicon := md.Favicon
		b.Favicon = &favicon
	}
	b.Metadata = md.BookmarkMetadata()
}

// Update applies patch to bookmark id of userID.
func (s *Bookmarks) Update(ctx context.Context, userID, id string, patch domain.BookmarkPatch) (domain.Bookmark, error) {
	b, err := s.owned(ctx, userID, id)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if patch.URL != nil {
		u := strings.TrimSpace(*patch.URL)
		if u == "" {
			return domain.Bookmark{}, apperrors.Validation("url is required")
		}
		b.URL = urlnorm.EnsureScheme(u)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Bookmark{}, apperrors.Validation("title is required")
		}
		b.Title = title
	}
	if patch.Description != nil {
		b.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Tags != nil {
		b.Tags = cleanTags(*patch.Tags)
	}
	if patch.ClearFolder {
		b.Folder = nil
	} else if patch.Folder != nil {
		b.Folder = trimmedOrNil(patch.Folder)
	}
	if patch.Favicon != nil {
		b.Favicon = trimmedOrNil(patch.Favicon)
	}
	if patch.Metadata != nil {
		b.Metadata = patch.Metadata
	}
	if patch.ReadLater != nil {
		b.ReadLater = *patch.ReadLater
	}
	b.UpdatedAt = s.now()
	if err := s.store.UpdateBookmark(ctx, b); err != nil {
		return domain.Bookmark{}, err
	}
	return b, nil
}

func (s *Bookmarks) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteBookmark(ctx, id)
}

// RecordVisit counts a visit of bookmark id.
func (s *Bookmarks) RecordVisit(ctx context.Context, userID, id string) (domain.Bookmark, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return domain.Bookmark{}, err
	}
	return s.store.RecordVisit(ctx, id, s.now())
}

// BatchAdd stores many bookmarks for userID. See batch.Mutator.Add for partial failures.
func (s *Bookmarks) BatchAdd(ctx context.Context, userID string, bookmarks []domain.Bookmark) ([]domain.Bookmark, error) {
	if userID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	owned := make([]domain.Bookmark, len(bookmarks))
	for i, b := range bookmarks {
		b.UserID = userID
		b.Tags = cleanTags(b.Tags)
		b.Folder = trimmedOrNil(b.Folder)
		owned[i] = b
	}
	return s.mutator.Add(ctx, owned)
}

func (s *Bookmarks) BatchDelete(ctx context.Context, userID string, ids []string) (bool, error) {
	return s.mutator.Delete(ctx, userID, ids)
}

// Tags lists the distinct tags of userID. The list is cached and may be stale for up to the
// cache TTL after a change.
func (s *Bookmarks) Tags(ctx context.Context, userID string) ([]string, error) {
	return s.cachedList(ctx, s.tags, userID, s.store.DistinctTags)
}

// Folders lists the distinct folders of userID, cached like Tags.
func (s *Bookmarks) Folders(ctx context.Context, userID string) ([]string, error) {
	return s.cachedList(ctx, s.folders, userID, s.store.DistinctFolders)
}

func (s *Bookmarks) cachedList(ctx context.Context, c cache.Cache[[]string], userID string, load func(context.Context, string) ([]string, error)) ([]string, error) {
	if userID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	if values, ok := c.Get(ctx, userID); ok {
		return values, nil
	}
	values, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, userID, values)
	return values, nil
}

// ImportResult reports how an import went.
type ImportResult struct {
	Found    int               `json:"found"`
	Imported int               `json:"imported"`
	Items    []domain.Bookmark `json:"items"`
}

// Import parses data and stores its bookmarks for userID.
func (s *Bookmarks) Import(ctx context.Context, userID string, format convert.Format, data []byte) (ImportResult, error) {
	if userID == "" {
		return ImportResult{}, apperrors.Validation("user id is required")
	}
	parsed, err := convert.Import(format, data, s.now())
	if err != nil {
		return ImportResult{}, err
	}
	if len(parsed) == 0 {
		return ImportResult{}, apperrors.Validation("no bookmarks found in file")
	}
	s.log.Info("Importing bookmarks", logger.Int("count", len(parsed)), logger.String("user", userID), logger.String("format", string(format)))
	created, err := s.BatchAdd(ctx, userID, parsed)
	result := ImportResult{Found: len(parsed), Imported: len(created), Items: created}
	return result, err
}

// Export serializes every bookmark of userID.
func (s *Bookmarks) Export(ctx context.Context, userID string, format convert.Format) ([]byte, error) {
	if userID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	bookmarks, err := s.store.AllBookmarks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return convert.Export(format, bookmarks, s.now())
}

// Metadata fetches page metadata for rawURL.
func (s *Bookmarks) Metadata(ctx context.Context, rawURL string, refresh bool) (metadata.PageMetadata, error) {
	if strings.TrimSpace(rawURL) == "" {
		return metadata.PageMetadata{}, apperrors.Validation("url is required")
	}
	if s.fetcher == nil {
		return metadata.PageMetadata{}, apperrors.Internal("metadata fetching is disabled", nil)
	}
	return s.fetcher.Fetch(ctx, strings.TrimSpace(rawURL), metadata.FetchOptions{ForceRefresh: refresh}), nil
}

func cleanTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
