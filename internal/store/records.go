// records.go holds the typed, table-specific operations that sit on top of
// the generic Get/Create/Replace/Patch/Delete/Select in docstore.go: the
// data-model invariants (embedding dimension checks, FileInfo deduplication,
// relationship endpoint resolution, delete-by-source-id cascade) live here
// rather than being re-derived at every call site.
package store

import (
	"context"
	"fmt"
	"sort"

	"noema/internal/apperr"
	"noema/internal/model"
)

// --- User -------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id string) (model.User, bool, error) {
	return Get[model.User](ctx, s, model.User{}.TableName(), id)
}

func (s *Store) GetUserByAPIKey(ctx context.Context, apiKey string) (model.User, bool, error) {
	users, err := SelectAll[model.User](ctx, s, model.User{}.TableName())
	if err != nil {
		return model.User{}, false, err
	}
	for _, u := range users {
		if u.APIKey != "" && u.APIKey == apiKey {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	now := nowUTC()
	u.CreatedAt, u.UpdatedAt = now, now
	return Create(ctx, s, u)
}

// DeleteUserCascade removes the user and every Content the user owns, each
// through DeleteContentCascade (chunks, entities, relationships). FileInfo
// rows, ingestion tasks, conversations and messages of the user are not
// deleted.
func (s *Store) DeleteUserCascade(ctx context.Context, userID string) error {
	contents, err := s.ListContentByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range contents {
		if err := s.DeleteContentCascade(ctx, c.ID); err != nil {
			return err
		}
	}
	return Delete(ctx, s, model.User{}.TableName(), userID)
}

// --- Content ------------------------------------------------------------

func (s *Store) GetContent(ctx context.Context, id string) (model.Content, bool, error) {
	return Get[model.Content](ctx, s, model.Content{}.TableName(), id)
}

func (s *Store) CreateContent(ctx context.Context, c model.Content) error {
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now
	return Create(ctx, s, c)
}

func (s *Store) PatchContent(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = nowUTC()
	return Patch(ctx, s, model.Content{}.TableName(), id, fields)
}

func (s *Store) ListContentByUser(ctx context.Context, userID string) ([]model.Content, error) {
	all, err := SelectAll[model.Content](ctx, s, model.Content{}.TableName())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Categories returns the distinct Content.category values for userID.
// Category is not a stored type; GET /api/v1/categories serves this derived
// projection.
func (s *Store) Categories(ctx context.Context, userID string) ([]string, error) {
	contents, err := s.ListContentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range contents {
		if c.Category == "" || seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		out = append(out, c.Category)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteContentCascade deletes a Content and every Chunk, Entity, and
// Relationship whose source_id equals it. Orphan rows are illegal, so the
// cascade also prunes relationships touching any deleted entity.
func (s *Store) DeleteContentCascade(ctx context.Context, contentID string) error {
	chunks, err := s.ListChunksBySource(ctx, contentID)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := s.DeleteChunk(ctx, c.ID); err != nil {
			return err
		}
	}

	entities, err := s.ListEntitiesBySource(ctx, contentID)
	if err != nil {
		return err
	}
	entityIDs := make(map[string]bool, len(entities))
	for _, e := range entities {
		entityIDs[e.ID] = true
	}

	rels, err := SelectAll[model.KnowledgeRelationship](ctx, s, model.KnowledgeRelationship{}.TableName())
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.SourceID == contentID || entityIDs[r.InID] || entityIDs[r.OutID] {
			if err := Delete(ctx, s, model.KnowledgeRelationship{}.TableName(), r.ID); err != nil {
				return err
			}
		}
	}

	for _, e := range entities {
		if err := s.DeleteEntity(ctx, e.ID); err != nil {
			return err
		}
	}

	return Delete(ctx, s, model.Content{}.TableName(), contentID)
}

// --- FileInfo -------------------------------------------------------------

func (s *Store) GetFile(ctx context.Context, id string) (model.FileInfo, bool, error) {
	return Get[model.FileInfo](ctx, s, model.FileInfo{}.TableName(), id)
}

// FindFileBySHA256 implements the "exactly one FileInfo per (user, sha256)"
// invariant's lookup half: dedup is enforced by the caller checking here
// before writing new bytes.
func (s *Store) FindFileBySHA256(ctx context.Context, userID, sha256 string) (model.FileInfo, bool, error) {
	files, err := SelectAll[model.FileInfo](ctx, s, model.FileInfo{}.TableName())
	if err != nil {
		return model.FileInfo{}, false, err
	}
	for _, f := range files {
		if f.UserID == userID && f.SHA256 == sha256 {
			return f, true, nil
		}
	}
	return model.FileInfo{}, false, nil
}

func (s *Store) CreateFile(ctx context.Context, f model.FileInfo) error {
	now := nowUTC()
	f.CreatedAt, f.UpdatedAt = now, now
	return Create(ctx, s, f)
}

// --- TextChunk ------------------------------------------------------------

// CreateChunk rejects a chunk whose embedding length doesn't match dims
// before it ever reaches the vector index.
func (s *Store) CreateChunk(ctx context.Context, c model.TextChunk, dims int) error {
	if dims > 0 && len(c.Embedding) != dims {
		return apperr.New(apperr.Validation, fmt.Sprintf("chunk embedding length %d != %d", len(c.Embedding), dims))
	}
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := Create(ctx, s, c); err != nil {
		return err
	}
	if err := s.UpsertVector(ctx, VectorChunks, c.ID, c.Embedding, map[string]string{"source_id": c.SourceID, "user_id": c.UserID}); err != nil {
		return err
	}
	return s.IndexText(ctx, string(VectorChunks), c.ID, c.Chunk, map[string]string{"source_id": c.SourceID, "user_id": c.UserID})
}

func (s *Store) GetChunk(ctx context.Context, id string) (model.TextChunk, bool, error) {
	return Get[model.TextChunk](ctx, s, model.TextChunk{}.TableName(), id)
}

func (s *Store) ListChunksBySource(ctx context.Context, contentID string) ([]model.TextChunk, error) {
	all, err := SelectAll[model.TextChunk](ctx, s, model.TextChunk{}.TableName())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.SourceID == contentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) DeleteChunk(ctx context.Context, id string) error {
	if err := s.DeleteVector(ctx, VectorChunks, id); err != nil {
		return err
	}
	if err := s.RemoveText(ctx, string(VectorChunks), id); err != nil {
		return err
	}
	return Delete(ctx, s, model.TextChunk{}.TableName(), id)
}

// --- KnowledgeEntity --------------------------------------------------------

func (s *Store) CreateEntity(ctx context.Context, e model.KnowledgeEntity, dims int) error {
	if dims > 0 && len(e.Embedding) != dims {
		return apperr.New(apperr.Validation, fmt.Sprintf("entity embedding length %d != %d", len(e.Embedding), dims))
	}
	now := nowUTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if err := Create(ctx, s, e); err != nil {
		return err
	}
	if err := s.UpsertVector(ctx, VectorEntities, e.ID, e.Embedding, map[string]string{"source_id": e.SourceID, "user_id": e.UserID}); err != nil {
		return err
	}
	if err := s.IndexText(ctx, string(VectorEntities), e.ID, e.Name+" "+e.Description, map[string]string{"source_id": e.SourceID, "user_id": e.UserID}); err != nil {
		return err
	}
	return s.UpsertEntityNode(ctx, e.ID, map[string]any{"name": e.Name, "entity_type": string(e.EntityType), "source_id": e.SourceID, "user_id": e.UserID})
}

func (s *Store) GetEntity(ctx context.Context, id string) (model.KnowledgeEntity, bool, error) {
	return Get[model.KnowledgeEntity](ctx, s, model.KnowledgeEntity{}.TableName(), id)
}

func (s *Store) ListEntitiesBySource(ctx context.Context, contentID string) ([]model.KnowledgeEntity, error) {
	all, err := SelectAll[model.KnowledgeEntity](ctx, s, model.KnowledgeEntity{}.TableName())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.SourceID == contentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if err := s.DeleteVector(ctx, VectorEntities, id); err != nil {
		return err
	}
	if err := s.RemoveText(ctx, string(VectorEntities), id); err != nil {
		return err
	}
	return Delete(ctx, s, model.KnowledgeEntity{}.TableName(), id)
}

// --- KnowledgeRelationship --------------------------------------------------

// CreateRelationship requires both endpoints to resolve to existing
// KnowledgeEntity rows owned by the same user, returning a GraphMapper
// error otherwise. Dangling edges never reach the store.
func (s *Store) CreateRelationship(ctx context.Context, r model.KnowledgeRelationship) error {
	out, ok, err := s.GetEntity(ctx, r.OutID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.GraphMapper, "relationship source entity not found: "+r.OutID)
	}
	in, ok, err := s.GetEntity(ctx, r.InID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.GraphMapper, "relationship target entity not found: "+r.InID)
	}
	if out.UserID != r.UserID || in.UserID != r.UserID {
		return apperr.New(apperr.GraphMapper, "relationship endpoints span users")
	}
	now := nowUTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := Create(ctx, s, r); err != nil {
		return err
	}
	return s.UpsertRelationshipEdge(ctx, r.OutID, r.RelationshipType, r.InID)
}

// --- IngestionTask -----------------------------------------------------------

func (s *Store) GetTask(ctx context.Context, id string) (model.IngestionTask, bool, error) {
	return Get[model.IngestionTask](ctx, s, model.IngestionTask{}.TableName(), id)
}

func (s *Store) CreateTask(ctx context.Context, t model.IngestionTask) error {
	now := nowUTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return Create(ctx, s, t)
}

func (s *Store) ReplaceTask(ctx context.Context, t model.IngestionTask) error {
	t.UpdatedAt = nowUTC()
	return Replace(ctx, s, t)
}

// UnfinishedTasks returns every task in Created or InProgress{attempts<max}
// ordered by created_at ascending, so a restarted worker re-claims work
// interrupted by a crash before consuming the live stream.
func (s *Store) UnfinishedTasks(ctx context.Context, maxAttempts int) ([]model.IngestionTask, error) {
	all, err := SelectAll[model.IngestionTask](ctx, s, model.IngestionTask{}.TableName())
	if err != nil {
		return nil, err
	}
	var out []model.IngestionTask
	for _, t := range all {
		switch t.Status.Kind {
		case model.TaskCreated:
			out = append(out, t)
		case model.TaskInProgress:
			if t.Status.Attempts < maxAttempts {
				out = append(out, t)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Conversation / Message --------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, c model.Conversation) error {
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now
	return Create(ctx, s, c)
}

func (s *Store) AppendMessage(ctx context.Context, m model.Message) error {
	now := nowUTC()
	m.CreatedAt, m.UpdatedAt = now, now
	return Create(ctx, s, m)
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	all, err := SelectAll[model.Message](ctx, s, model.Message{}.TableName())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- SystemSettings ----------------------------------------------------------

// Settings returns the single SystemSettings row, lazily creating it with
// defaults on first read.
func (s *Store) Settings(ctx context.Context) (model.SystemSettings, error) {
	cur, ok, err := Get[model.SystemSettings](ctx, s, model.SystemSettings{}.TableName(), model.SettingsID)
	if err != nil {
		return model.SystemSettings{}, err
	}
	if ok {
		return cur, nil
	}
	defaults := model.DefaultSystemSettings()
	now := nowUTC()
	defaults.CreatedAt, defaults.UpdatedAt = now, now
	if err := Create(ctx, s, defaults); err != nil {
		return model.SystemSettings{}, err
	}
	return defaults, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings model.SystemSettings) error {
	settings.ID = model.SettingsID
	settings.UpdatedAt = nowUTC()
	return Replace(ctx, s, settings)
}
