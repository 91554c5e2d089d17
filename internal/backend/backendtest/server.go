// Package backendtest provides an in-memory chunk server for tests.
package backendtest

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sessionedit/internal/model"
)

const cookieName = "session"

type state struct {
	folder string
	chunks []model.Chunk
	index  int
}

type failure struct {
	status int
	body   string
}

// Server mimics the chunk server: cookie sessions, clamped navigation, saves written to a
// separate folder and echoed when that save is loaded.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	sources     map[string][]model.Chunk
	saves       map[string][]model.Chunk
	attachments map[string][]byte
	sessions    map[string]*state
	failures    map[string][]failure
	payloads    []model.AnnotationsPayload

	// Before runs at the start of every request, outside the lock.
	Before func(r *http.Request)
}

func NewServer() *Server {
	s := &Server{
		sources:     make(map[string][]model.Chunk),
		saves:       make(map[string][]model.Chunk),
		attachments: make(map[string][]byte),
		sessions:    make(map[string]*state),
		failures:    make(map[string][]failure),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.upload)
	mux.HandleFunc("POST /navigate", s.navigate)
	mux.HandleFunc("GET /get_chunk", s.getChunk)
	mux.HandleFunc("GET /list_recents", s.listRecents)
	mux.HandleFunc("GET /list_recent_saves", s.listRecentSaves)
	mux.HandleFunc("POST /load_recent", s.loadRecent)
	mux.HandleFunc("POST /save_marked", s.saveMarked)
	mux.HandleFunc("POST /export_marked", s.exportMarked)
	mux.HandleFunc("GET /attachment/{id}", s.attachment)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Before != nil {
			s.Before(r)
		}
		if f, ok := s.popFailure(r.URL.Path); ok {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

// AddSource registers an uploadable archive; upload of "<folder>.zip" loads it.
func (s *Server) AddSource(folder string, chunks ...model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[folder] = chunks
}

// AddSave registers a previous save.
func (s *Server) AddSave(folder string, chunks ...model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[folder] = chunks
}

func (s *Server) AddAttachment(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[id] = data
}

// Fail makes the next request to path answer with status and body verbatim.
func (s *Server) Fail(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], failure{status: status, body: body})
}

// Payloads returns every save and export body received.
func (s *Server) Payloads() []model.AnnotationsPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AnnotationsPayload(nil), s.payloads...)
}

// Save returns the chunks stored by save_marked for folder.
func (s *Server) Save(folder string) []model.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChunks(s.saves[folder])
}

// Messages builds n plain messages.
func Messages(n int) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		out[i] = model.Message{
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: "2024-03-01T10:00:00",
			Author:    model.Author{Name: "user" + strconv.Itoa(i%3)},
		}
	}
	return out
}

// Chunk builds a chunk of n plain messages.
func Chunk(n int) model.Chunk {
	return model.Chunk{MessageCount: n, Messages: Messages(n)}
}

func (s *Server) popFailure(path string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.failures[path]
	if len(q) == 0 {
		return failure{}, false
	}
	s.failures[path] = q[1:]
	return q[0], true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *state {
	if c, err := r.Cookie(cookieName); err == nil {
		if st, ok := s.sessions[c.Value]; ok {
			return st
		}
	}
	id := uuid.NewString()
	st := &state{}
	s.sessions[id] = st
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: id, Path: "/"})
	return st
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil || !strings.EqualFold(filepath.Ext(hdr.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "Invalid file format")
		return
	}
	f.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	folder := strings.TrimSuffix(hdr.Filename, filepath.Ext(hdr.Filename))
	chunks, ok := s.sources[folder]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid archive: needs .json files and packed_images.db")
		return
	}
	st := s.session(w, r)
	*st = state{folder: folder, chunks: cloneChunks(chunks)}
	s.writeChunk(w, st, "File loaded")
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req model.NavigateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.session(w, r)
	if len(st.chunks) == 0 {
		writeError(w, http.StatusBadRequest, "No file loaded")
		return
	}
	last := len(st.chunks) - 1
	switch req.Direction {
	case model.DirectionFirst:
		st.index = 0
	case model.DirectionLast:
		st.index = last
	case model.DirectionForward:
		st.index = min(st.index+1, last)
	case model.DirectionBackward:
		st.index = max(st.index-1, 0)
	}
	s.writeChunk(w, st, "")
}

func (s *Server) getChunk(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.session(w, r)
	if len(st.chunks) == 0 {
		writeError(w, http.StatusBadRequest, "No file loaded")
		return
	}
	s.writeChunk(w, st, "")
}

func (s *Server) listRecents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, sortedKeys(s.sources))
}

func (s *Server) listRecentSaves(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, sortedKeys(s.saves))
}

func (s *Server) loadRecent(w http.ResponseWriter, r *http.Request) {
	var req model.LoadRecentRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.sources
	if req.SaveFolder {
		src = s.saves
	}
	chunks, ok := src[req.Folder]
	if !ok {
		writeError(w, http.StatusNotFound, "Folder not found")
		return
	}
	st := s.session(w, r)
	*st = state{folder: req.Folder, chunks: cloneChunks(chunks)}
	s.writeChunk(w, st, "Recent loaded")
}

func (s *Server) saveMarked(w http.ResponseWriter, r *http.Request) {
	var p model.AnnotationsPayload
	_ = json.NewDecoder(r.Body).Decode(&p)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.session(w, r)
	if st.folder == "" {
		writeError(w, http.StatusBadRequest, "No file loaded")
		return
	}
	s.payloads = append(s.payloads, p)
	saved := cloneChunks(st.chunks)
	for ci := range saved {
		for mi := range saved[ci].Messages {
			key := strconv.Itoa(ci) + ":" + strconv.Itoa(mi)
			m := &saved[ci].Messages[mi]
			m.Marked = p.Marks[key]
			m.Group = nil
			if ga, ok := p.Groups.Assignments[key]; ok {
				echo := &model.GroupEcho{ID: ga.ID}
				if ga.Name != "" {
					echo.Name = &ga.Name
				}
				if ga.Color != "" {
					echo.Color = &ga.Color
				}
				m.Group = echo
			}
		}
	}
	s.saves[st.folder] = saved
	writeJSON(w, http.StatusOK, model.Ack{Message: "Marked data saved"})
}

func (s *Server) exportMarked(w http.ResponseWriter, r *http.Request) {
	var p model.AnnotationsPayload
	_ = json.NewDecoder(r.Body).Decode(&p)
	s.mu.Lock()
	st := s.session(w, r)
	loaded := st.folder != ""
	if loaded {
		s.payloads = append(s.payloads, p)
	}
	s.mu.Unlock()
	if !loaded {
		writeError(w, http.StatusBadRequest, "No file loaded")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="marked_export.zip"`)
	zw := zip.NewWriter(w)
	fw, err := zw.Create("marked.json")
	if err == nil {
		_ = json.NewEncoder(fw).Encode(p)
	}
	_ = zw.Close()
}

func (s *Server) attachment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.attachments[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Attachment not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="`+r.PathValue("id")+`.png"`)
	_, _ = w.Write(data)
}

func (s *Server) writeChunk(w http.ResponseWriter, st *state, msg string) {
	c := st.chunks[st.index]
	c.MessageCount = len(c.Messages)
	count := len(st.chunks)
	files := make([]string, count)
	for i := range files {
		files[i] = fmt.Sprintf("chunk_%03d.json", i)
	}
	writeJSON(w, http.StatusOK, model.ChunkResponse{
		Message:    msg,
		ChunkIndex: st.index,
		FileCount:  &count,
		Data:       &c,
		JSONFiles:  files,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func sortedKeys(m map[string][]model.Chunk) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneChunks(in []model.Chunk) []model.Chunk {
	out := make([]model.Chunk, len(in))
	for i, c := range in {
		c.Messages = append([]model.Message(nil), c.Messages...)
		out[i] = c
	}
	return out
}
