package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/config"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/middleware"
	"github.com/sessionedit/internal/model"
	"github.com/sessionedit/internal/session"
)

// EditorHandler — HTTP API редактора поверх session.Manager.
type EditorHandler struct {
	cfg      *config.Config
	sessions *session.Manager
}

func NewEditorHandler(cfg *config.Config, sessions *session.Manager) *EditorHandler {
	return &EditorHandler{cfg: cfg, sessions: sessions}
}

type navigateRequest struct {
	Direction model.Direction `json:"direction" validate:"required,oneof=first last forward backward"`
}

type loadRecentRequest struct {
	Folder     string `json:"folder" validate:"required,max=255,excludesall=/\\"`
	SaveFolder bool   `json:"save_folder"`
}

type clickRequest struct {
	Shift bool   `json:"shift"`
	Name  string `json:"name" validate:"max=200"`
}

type secondaryRequest struct {
	RemoveGroup bool `json:"remove_group"`
}

type viewRequest struct {
	ShowDisplayNames *bool `json:"show_display_names" validate:"required"`
}

type gestureResponse struct {
	Result annotation.Result `json:"result"`
	State  session.ViewState `json:"state"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession заводит новую сессию редактора.
func (h *EditorHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		logger.Errorf("create session: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: s.ID})
}

// DeleteSession закрывает сессию и удаляет её снимок.
func (h *EditorHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	if err := h.sessions.Delete(r.Context(), s.ID); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EditorHandler) State(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	writeJSON(w, http.StatusOK, s.ViewState())
}

// Upload принимает multipart-поле file (zip) и потоком пересылает его серверу чанков.
func (h *EditorHandler) Upload(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form expected")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer part.Close()
	name := filepath.Base(part.FileName())
	if name == "." || name == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		writeError(w, http.StatusBadRequest, "Invalid file format")
		return
	}
	if err := s.Upload(r.Context(), name, part); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ViewState())
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (h *EditorHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	var req navigateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := s.Navigate(r.Context(), req.Direction); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ViewState())
}

func (h *EditorHandler) Reload(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	if err := s.Reload(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ViewState())
}

// Recents — папки загруженных архивов.
func (h *EditorHandler) Recents(w http.ResponseWriter, r *http.Request) {
	h.listRecents(w, r, session.SourceUpload)
}

// RecentSaves — папки сохранений.
func (h *EditorHandler) RecentSaves(w http.ResponseWriter, r *http.Request) {
	h.listRecents(w, r, session.SourceSave)
}

func (h *EditorHandler) listRecents(w http.ResponseWriter, r *http.Request, source session.Source) {
	s := middleware.GetSession(r.Context())
	folders, err := s.ListRecents(r.Context(), source)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"folders": folders})
}

func (h *EditorHandler) LoadRecent(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	var req loadRecentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	source := session.SourceUpload
	if req.SaveFolder {
		source = session.SourceSave
	}
	if err := s.LoadRecent(r.Context(), req.Folder, source); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ViewState())
}

// Resume заново открывает папку сессии, восстановленной из снимка. Аннотации не сбрасываются,
// но первый чанк сверяется с сервером: несохранённые правки этого чанка заменяются его флагами.
func (h *EditorHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	if err := s.Resume(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ViewState())
}

func (h *EditorHandler) ToggleMarkMode(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	s.ToggleMarkMode(r.Context())
	writeJSON(w, http.StatusOK, s.ViewState())
}

func (h *EditorHandler) ToggleDividerMode(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	s.ToggleDividerMode(r.Context())
	writeJSON(w, http.StatusOK, s.ViewState())
}

// Click — основной клик по сообщению; name — ответ на вопрос об имени диапазона.
func (h *EditorHandler) Click(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	key, ok := messageKey(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := s.Click(r.Context(), key, req.Shift, annotation.Answers{Name: req.Name})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gestureResponse{Result: res, State: s.ViewState()})
}

// Secondary — правый клик; remove_group подтверждает удаление всей группы.
func (h *EditorHandler) Secondary(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	key, ok := messageKey(w, r)
	if !ok {
		return
	}
	var req secondaryRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := s.SecondaryClick(r.Context(), key, annotation.Answers{RemoveGroup: req.RemoveGroup})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gestureResponse{Result: res, State: s.ViewState()})
}

func messageKey(w http.ResponseWriter, r *http.Request) (annotation.MessageKey, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		raw = chi.URLParam(r, "key")
	}
	key, err := annotation.ParseKey(raw)
	if err != nil {
		writeSessionError(w, err)
		return annotation.MessageKey{}, false
	}
	return key, true
}

func (h *EditorHandler) SetView(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	var req viewRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	s.SetShowDisplayNames(r.Context(), *req.ShowDisplayNames)
	writeJSON(w, http.StatusOK, s.ViewState())
}

func (h *EditorHandler) ReloadImages(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	key := s.ReloadImages(r.Context())
	writeJSON(w, http.StatusOK, map[string]int64{"images_reload_key": key})
}

func (h *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	res, err := s.Save(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export отдаёт архив экспорта потоком. Число пропущенных диапазонов — в X-Unresolved-Spans.
func (h *EditorHandler) Export(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	d, res, err := s.Export(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if res.Unresolved > 0 {
		w.Header().Set("X-Unresolved-Spans", strconv.Itoa(res.Unresolved))
	}
	writeDownload(w, d, "marked_export.zip", false)
}

// History — журнал сохранений и экспортов сессии.
func (h *EditorHandler) History(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries, err := s.History(r.Context(), limit)
	if err != nil {
		logger.Errorf("history session=%s: %v", logger.MaskID(s.ID), err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Attachment проксирует вложение с сервера чанков.
func (h *EditorHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	id := chi.URLParam(r, "id")
	if id == "" || strings.ContainsAny(id, `/\`) {
		writeError(w, http.StatusBadRequest, "invalid attachment id")
		return
	}
	d, err := s.Attachment(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	// v= меняется при "reload images", поэтому ответ можно кешировать надолго.
	w.Header().Set("Cache-Control", "private, max-age=86400")
	writeDownload(w, d, "", true)
}
