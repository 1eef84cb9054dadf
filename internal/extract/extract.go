// Package extract turns an ingestion payload into plain text: Url, Text,
// and File dispatch, with no higher-level ingestion concerns (chunking,
// enrichment) living here.
package extract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"noema/internal/apperr"
	"noema/internal/config"
	"noema/internal/llm"
	"noema/internal/model"
	"noema/internal/objectstore"
	"noema/internal/store"
)

// Payload is the per-call union extract dispatches on: exactly one of URL,
// Text, FileID is set. An IngestionTask carrying multiple FileIDs is
// extracted one call per id by the ingestion pipeline.
type Payload struct {
	URL    string
	Text   string
	FileID string
}

// Deps bundles the collaborators extract needs: the store (file lookup,
// dedup), the object store (reading uploaded bytes, caching hero images),
// and the chat provider (VLM image description, PDF-fallback description).
type Deps struct {
	Store    *store.Store
	Objects  objectstore.ObjectStore
	Provider llm.Provider
	Config   config.ExtractConfig
}

// Extract resolves payload into plain text plus, where the payload
// produced or referenced one, the FileInfo backing it.
func Extract(ctx context.Context, payload Payload, userID string, deps Deps) (string, *model.FileInfo, error) {
	switch {
	case payload.URL != "":
		text, _, fi, err := ExtractURL(ctx, payload.URL, userID, deps)
		return text, fi, err
	case payload.FileID != "":
		return extractFile(ctx, payload.FileID, userID, deps)
	default:
		return strings.TrimSpace(payload.Text), nil, nil
	}
}

// ExtractURL is the URL case with its provenance intact: article text, the
// URLInfo (url, title, cached hero image id) the resulting Content should
// carry, and the hero image's FileInfo if one was cached.
func ExtractURL(ctx context.Context, rawURL, userID string, deps Deps) (string, *model.URLInfo, *model.FileInfo, error) {
	f := newFetcher(deps.Config)
	art, err := f.fetchArticle(ctx, rawURL)
	if err != nil {
		return "", nil, nil, apperr.Wrap(apperr.Transient, "fetch url", err)
	}

	text := art.Text
	if art.Title != "" && !strings.HasPrefix(strings.TrimSpace(text), "# ") {
		text = "# " + art.Title + "\n\n" + text
	}

	info := &model.URLInfo{URL: rawURL, Title: art.Title}
	var fileInfo *model.FileInfo
	if art.ImageURL != "" {
		if cached, cerr := cacheHeroImage(ctx, f, art.ImageURL, userID, deps); cerr == nil {
			fileInfo = cached
			info.ImageID = cached.ID
		}
	}
	return text, info, fileInfo, nil
}

// cacheHeroImage downloads a URL article's hero image and dedup-persists it
// as a FileInfo.
// Failures here are non-fatal to the surrounding extraction.
func cacheHeroImage(ctx context.Context, f *fetcher, imageURL, userID string, deps Deps) (*model.FileInfo, error) {
	data, contentType, err := f.fetchBytes(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	sha := sha256Hex(data)

	if existing, ok, err := deps.Store.FindFileBySHA256(ctx, userID, sha); err == nil && ok {
		return &existing, nil
	}

	key := objectstore.FileKey(userID, sha)
	if _, err := deps.Objects.Put(ctx, key, bytes.NewReader(data), objectstore.PutOptions{ContentType: contentType}); err != nil {
		return nil, err
	}
	fi := model.FileInfo{
		ID:       uuid.NewString(),
		SHA256:   sha,
		Path:     key,
		MimeType: contentType,
		UserID:   userID,
	}
	if err := deps.Store.CreateFile(ctx, fi); err != nil {
		return nil, err
	}
	return &fi, nil
}

func extractFile(ctx context.Context, fileID, userID string, deps Deps) (string, *model.FileInfo, error) {
	fi, ok, err := deps.Store.GetFile(ctx, fileID)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Transient, "get file", err)
	}
	if !ok {
		return "", nil, apperr.New(apperr.NotFound, "file not found")
	}
	if fi.UserID != userID {
		return "", nil, apperr.New(apperr.Unauthorized, "file does not belong to user")
	}

	r, _, err := deps.Objects.Get(ctx, fi.Path)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Transient, "read file bytes", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Transient, "read file bytes", err)
	}

	text, err := dispatchMime(ctx, fi.MimeType, data, deps)
	if err != nil {
		return "", nil, err
	}
	return text, &fi, nil
}
