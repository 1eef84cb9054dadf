package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"noema/internal/answer"
	"noema/internal/apperr"
	"noema/internal/ingest"
	"noema/internal/model"
	"noema/internal/objectstore"
	"noema/internal/observability"
	"noema/internal/retrieval"
)

const maxUploadMemory = 32 << 20 // 32MiB held in memory before spilling multipart files to disk

type ingressRequest struct {
	Content  string `json:"content,omitempty"`
	Context  string `json:"context,omitempty"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url,omitempty"`
}

type ingressResponse struct {
	TaskID string `json:"task_id"`
}

// handleIngress accepts a multipart submission (content?, context, category,
// files[]) or a plain JSON body, validates it against the configured ingest
// limits, and enqueues an IngestionTask.
func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "unauthorized"))
		return
	}

	if s.limits.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	}

	var payload model.IngestionPayload
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, apperr.Wrap(apperr.Validation, "parse multipart form", err))
			return
		}
		payload.Text = r.FormValue("content")
		payload.Context = r.FormValue("context")
		payload.Category = r.FormValue("category")
		payload.URL = r.FormValue("url")

		var fileHeaders []*multipart.FileHeader
		if r.MultipartForm != nil {
			for _, headers := range r.MultipartForm.File {
				fileHeaders = append(fileHeaders, headers...)
			}
		}

		// Validate text-field sizes and the file count before persisting
		// anything: a rejected request must leave no FileInfo row and no
		// object-store blob behind.
		probe := payload
		probe.FileIDs = make([]string, len(fileHeaders))
		if err := ingest.ValidateInput(s.limits, probe); err != nil {
			writeError(w, err)
			return
		}

		for _, fh := range fileHeaders {
			id, err := s.storeUpload(r, user.ID, fh)
			if err != nil {
				writeError(w, err)
				return
			}
			payload.FileIDs = append(payload.FileIDs, id)
		}
	} else {
		var req ingressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.Wrap(apperr.Validation, "decode ingress body", err))
			return
		}
		payload = model.IngestionPayload{Text: req.Content, Context: req.Context, Category: req.Category, URL: req.URL}
		if err := ingest.ValidateInput(s.limits, payload); err != nil {
			writeError(w, err)
			return
		}
	}

	taskID, err := s.queue.Enqueue(r.Context(), payload, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingressResponse{TaskID: taskID})
}

func isMultipart(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return len(ct) >= 19 && ct[:19] == "multipart/form-data"
}

// storeUpload reads one uploaded part fully, dedups it by (user, sha256)
// against existing FileInfo rows, and writes new bytes to the object store,
// per model.FileInfo's dedup invariant.
func (s *Server) storeUpload(r *http.Request, userID string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "read uploaded file", err)
	}
	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])

	if existing, ok, err := s.store.FindFileBySHA256(r.Context(), userID, shaHex); err != nil {
		return "", err
	} else if ok {
		return existing.ID, nil
	}

	mimeType := fh.Header.Get("Content-Type")
	key := objectstore.FileKey(userID, shaHex)
	if _, err := s.objects.Put(r.Context(), key, bytes.NewReader(data), objectstore.PutOptions{ContentType: mimeType}); err != nil {
		return "", apperr.Wrap(apperr.Transient, "store uploaded file", err)
	}

	file := model.FileInfo{ID: uuid.NewString(), SHA256: shaHex, Path: key, MimeType: mimeType, UserID: userID}
	if err := s.store.CreateFile(r.Context(), file); err != nil {
		return "", err
	}
	return file.ID, nil
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "unauthorized"))
		return
	}
	categories, err := s.store.Categories(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

type queryRequest struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "unauthorized"))
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "decode query body", err))
		return
	}

	log := observability.LoggerWithUser(r.Context(), user.ID)

	strategy := retrieval.StrategyChatAnswer
	if req.Strategy != "" {
		strategy = retrieval.Strategy(req.Strategy)
	}

	result, err := retrieval.Run(r.Context(), s.retrieval, retrieval.Request{
		Query:    req.Query,
		UserID:   user.ID,
		Strategy: strategy,
	})
	if err != nil {
		log.Error().Err(err).Str("strategy", string(strategy)).Msg("retrieval failed")
		writeError(w, err)
		return
	}

	resp, err := answer.Answer(r.Context(), s.answer, req.Query, result)
	if err != nil {
		log.Error().Err(err).Msg("answer composition failed")
		writeError(w, err)
		return
	}
	log.Debug().
		Int("chunks", len(result.Chunks)).
		Int("entities", len(result.Entities)).
		Int("references", len(resp.References)).
		Msg("query answered")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Settings(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"checks": map[string]string{"db": "fail"},
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"checks": map[string]string{"db": "ok"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}
	writeJSON(w, apperr.StatusCode(err), map[string]string{"error": err.Error()})
}
