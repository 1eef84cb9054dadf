package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/answer"
	"noema/internal/config"
	"noema/internal/model"
	"noema/internal/objectstore"
	"noema/internal/queue"
	"noema/internal/retrieval"
	"noema/internal/store"
)

func newTestServer(t *testing.T) (*Server, model.User) {
	t.Helper()
	s, err := store.New(context.Background(), config.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	user := model.User{ID: "user-1", Email: "a@example.com", APIKey: "secret-key"}
	require.NoError(t, s.CreateUser(context.Background(), user))

	q := queue.New(s, 5)
	objects := objectstore.NewMemoryStore()
	retDeps := retrieval.Deps{
		Store: s,
		Embed: func(ctx context.Context, text string) ([]float32, error) { return []float32{1, 0}, nil },
	}
	limits := config.IngestLimits{MaxFiles: 10, MaxContentBytes: 1 << 20, MaxContextBytes: 1 << 16, MaxCategoryBytes: 256}
	answerDeps := answer.Deps{Store: s}

	return NewServer(s, objects, q, retDeps, answerDeps, limits), user
}

func TestHandleLive_AlwaysReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReady_ReturnsOKWithWorkingStore(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngress_RejectsMissingAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(ingressRequest{Content: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngress_EnqueuesTaskWithValidAPIKey(t *testing.T) {
	srv, user := newTestServer(t)
	body, _ := json.Marshal(ingressRequest{Content: "hello world", Category: "reading"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", bytes.NewReader(body))
	req.Header.Set("X-API-Key", user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ingressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
}

func TestIngress_RejectsOversizedContent(t *testing.T) {
	srv, user := newTestServer(t)
	srv.limits.MaxContentBytes = 4
	body, _ := json.Marshal(ingressRequest{Content: "way too long for the configured cap"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", bytes.NewReader(body))
	req.Header.Set("X-API-Key", user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestIngress_AcceptsBearerTokenAuth(t *testing.T) {
	srv, user := newTestServer(t)
	body, _ := json.Marshal(ingressRequest{Content: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngress_MultipartFileUploadIsStoredAndDeduped(t *testing.T) {
	srv, user := newTestServer(t)
	fileBytes := []byte("this is a note")

	upload := func() {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "note.txt")
		require.NoError(t, err)
		_, err = part.Write(fileBytes)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("category", "notes"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-API-Key", user.APIKey)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	upload()
	upload()

	sum := sha256.Sum256(fileBytes)
	shaHex := hex.EncodeToString(sum[:])
	_, found, err := srv.store.FindFileBySHA256(context.Background(), user.ID, shaHex)
	require.NoError(t, err)
	assert.True(t, found, "uploaded file must be stored as a FileInfo row")
	files, err := store.SelectAll[model.FileInfo](context.Background(), srv.store, model.FileInfo{}.TableName())
	require.NoError(t, err)
	assert.Len(t, files, 1, "re-uploading identical bytes must reuse the existing FileInfo")
}

func TestIngress_RejectedRequestWritesNoFileInfo(t *testing.T) {
	srv, user := newTestServer(t)
	srv.limits.MaxContentBytes = 4

	fileBytes := []byte("file riding along with oversize content")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "note.txt")
	require.NoError(t, err)
	_, err = part.Write(fileBytes)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("content", "way too long for the configured cap"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingress", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	sum := sha256.Sum256(fileBytes)
	shaHex := hex.EncodeToString(sum[:])
	_, found, err := srv.store.FindFileBySHA256(context.Background(), user.ID, shaHex)
	require.NoError(t, err)
	assert.False(t, found, "rejected request must not persist a FileInfo row")
	exists, err := srv.objects.Exists(context.Background(), objectstore.FileKey(user.ID, shaHex))
	require.NoError(t, err)
	assert.False(t, exists, "rejected request must not write object-store bytes")
}

func TestCategories_ReturnsOKForAuthenticatedUser(t *testing.T) {
	srv, user := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.Header.Set("X-API-Key", user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuery_RunsRetrievalAndReturnsResult(t *testing.T) {
	srv, user := newTestServer(t)
	body, _ := json.Marshal(queryRequest{Query: "anything"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("X-API-Key", user.APIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
