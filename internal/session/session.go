// Package session holds editing sessions: one annotation engine per browser session, the
// chunk it currently shows, and the round trips to the chunk server that move it around.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/backend"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/model"
	"github.com/sessionedit/internal/render"
)

// Backend is the chunk server as seen by one session. *backend.Client implements it.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*model.ChunkResponse, error)
	Navigate(ctx context.Context, dir model.Direction) (*model.ChunkResponse, error)
	CurrentChunk(ctx context.Context) (*model.ChunkResponse, error)
	ListRecents(ctx context.Context) ([]string, error)
	ListRecentSaves(ctx context.Context) ([]string, error)
	LoadRecent(ctx context.Context, folder string, saveFolder bool) (*model.ChunkResponse, error)
	SaveMarked(ctx context.Context, p model.AnnotationsPayload) (*model.Ack, error)
	ExportMarked(ctx context.Context, p model.AnnotationsPayload) (*backend.Download, error)
	Attachment(ctx context.Context, id string) (*backend.Download, error)
}

// Journal records saves and exports. It is optional.
type Journal interface {
	Record(ctx context.Context, e *model.SaveLogEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.SaveLogEntry, error)
}

// Source tells where the loaded data came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceSave   Source = "save"
)

// State is what the session currently shows.
type State struct {
	Loaded     bool         `json:"loaded"`
	ChunkIndex int          `json:"chunk_index"`
	FileCount  int          `json:"file_count"`
	JSONFiles  []string     `json:"json_files,omitempty"`
	Folder     string       `json:"folder,omitempty"`
	Source     Source       `json:"source,omitempty"`
	Chunk      *model.Chunk `json:"chunk,omitempty"`
}

// SaveResult reports what a save or export sent.
type SaveResult struct {
	Message     string `json:"message,omitempty"`
	Marks       int    `json:"marks"`
	Assignments int    `json:"assignments"`
	// Unresolved counts divider spans left out because their chunk was never loaded.
	Unresolved int `json:"unresolved_spans,omitempty"`
}

// Events published to the session's listeners.
const (
	EventStateChanged = "state_changed"
	EventChunkLoaded  = "chunk_loaded"
	EventError        = "error"
)

type hooks struct {
	persist func(ctx context.Context, s *Session)
	notify  func(sessionID, event string, payload any)
}

// Session serializes all engine access with a mutex. Round trips to the chunk server run
// without holding it; each fetch takes a generation number and a response that is no
// longer the newest is dropped with ErrSuperseded.
type Session struct {
	ID string

	mu        sync.Mutex
	backend   Backend
	engine    *annotation.Engine
	renderer  *render.Renderer
	state     State
	view      render.View
	gen       uint64
	resumable bool
	touched   time.Time

	journal Journal
	metrics *metrics.Collector
	hooks   hooks
}

// New creates a session with an empty engine.
func New(id string, b Backend, r *render.Renderer, opts ...annotation.Option) *Session {
	if r == nil {
		r = render.New()
	}
	return &Session{
		ID:       id,
		backend:  b,
		engine:   annotation.NewEngine(opts...),
		renderer: r,
		view:     render.View{ImagesReloadKey: time.Now().UnixMilli()},
		touched:  time.Now(),
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.JSONFiles = append([]string(nil), s.state.JSONFiles...)
	return st
}

// WithEngine runs fn with the engine under the session lock. fn must not keep the engine.
func (s *Session) WithEngine(fn func(e *annotation.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// begin takes a new generation. requireLoaded rejects the call before any round trip
// when nothing has been loaded yet.
func (s *Session) begin(requireLoaded bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if requireLoaded && !s.state.Loaded {
		return 0, ErrNoFileLoaded
	}
	s.gen++
	s.touched = time.Now()
	return s.gen, nil
}

// apply installs a chunk response and reconciles the engine against it.
func (s *Session) apply(ctx context.Context, gen uint64, kind Kind, resp *model.ChunkResponse, folder string, source Source, reset bool) error {
	if resp == nil || resp.Data == nil {
		return opError(kind, errors.New("empty chunk response"))
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.metrics.IncSuperseded()
		logger.Debugf("session %s: dropped superseded response for chunk %d", logger.MaskID(s.ID), resp.ChunkIndex)
		return ErrSuperseded
	}
	chunk := resp.Data
	chunk.Index = resp.ChunkIndex
	s.state.Loaded = true
	s.state.ChunkIndex = resp.ChunkIndex
	s.state.Chunk = chunk
	if resp.FileCount != nil {
		s.state.FileCount = *resp.FileCount
	}
	if resp.JSONFiles != nil {
		s.state.JSONFiles = resp.JSONFiles
		if resp.FileCount == nil {
			s.state.FileCount = len(resp.JSONFiles)
		}
	}
	if folder != "" {
		s.state.Folder = folder
		s.state.Source = source
	}
	if reset {
		s.engine.ResetMarks()
		s.engine.ResetGroups()
	}
	s.engine.Reconcile(chunk)
	s.resumable = false
	s.mu.Unlock()

	s.changed(ctx, EventChunkLoaded)
	return nil
}

func (s *Session) fail(gen uint64, kind Kind, err error) error {
	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		s.metrics.IncSuperseded()
		return ErrSuperseded
	}
	err = opError(kind, err)
	if s.hooks.notify != nil {
		s.hooks.notify(s.ID, EventError, model.ErrorResponse{Error: err.Error()})
	}
	return err
}

// Upload sends an archive to the chunk server and shows its first chunk.
func (s *Session) Upload(ctx context.Context, filename string, r io.Reader) error {
	defer logger.DeferLogDuration("session.Upload", time.Now())()
	gen, err := s.begin(false)
	if err != nil {
		return err
	}
	resp, err := s.backend.Upload(ctx, filename, r)
	if err != nil {
		return s.fail(gen, KindLoadFailed, err)
	}
	return s.apply(ctx, gen, KindLoadFailed, resp, folderOf(filename), SourceUpload, false)
}

// Navigate moves to the first, last, next or previous chunk.
func (s *Session) Navigate(ctx context.Context, dir model.Direction) error {
	defer logger.DeferLogDuration("session.Navigate", time.Now())()
	if !dir.Valid() {
		return ErrInvalidDirection
	}
	gen, err := s.begin(true)
	if err != nil {
		return err
	}
	resp, err := s.backend.Navigate(ctx, dir)
	if err != nil {
		return s.fail(gen, KindNavigationFailed, err)
	}
	return s.apply(ctx, gen, KindNavigationFailed, resp, "", "", false)
}

// Reload fetches the current chunk again. Unsaved edits of that chunk are replaced by
// the server's flags.
func (s *Session) Reload(ctx context.Context) error {
	defer logger.DeferLogDuration("session.Reload", time.Now())()
	gen, err := s.begin(true)
	if err != nil {
		return err
	}
	resp, err := s.backend.CurrentChunk(ctx)
	if err != nil {
		return s.fail(gen, KindNavigationFailed, err)
	}
	return s.apply(ctx, gen, KindNavigationFailed, resp, "", "", false)
}

// LoadRecent opens a previously uploaded archive or a previous save. Opening a save starts
// from a clean slate: all marks and groups are dropped before its chunk is reconciled.
func (s *Session) LoadRecent(ctx context.Context, folder string, source Source) error {
	defer logger.DeferLogDuration("session.LoadRecent", time.Now())()
	gen, err := s.begin(false)
	if err != nil {
		return err
	}
	resp, err := s.backend.LoadRecent(ctx, folder, source == SourceSave)
	if err != nil {
		return s.fail(gen, KindLoadFailed, err)
	}
	return s.apply(ctx, gen, KindLoadFailed, resp, folder, source, source == SourceSave)
}

// Resume reopens the folder of a session restored from a snapshot. Nothing is reset, but
// the server starts again at the first chunk and that chunk is reconciled like any load:
// unsaved marks and same-chunk group edits there give way to the server's flags. Other
// chunks and divider spans keep their local state.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	folder, source, ok := s.state.Folder, s.state.Source, s.resumable
	s.mu.Unlock()
	if !ok || folder == "" {
		return ErrNothingToResume
	}
	gen, err := s.begin(false)
	if err != nil {
		return err
	}
	resp, err := s.backend.LoadRecent(ctx, folder, source == SourceSave)
	if err != nil {
		return s.fail(gen, KindLoadFailed, err)
	}
	return s.apply(ctx, gen, KindLoadFailed, resp, folder, source, false)
}

// ListRecents returns the folders that can be reopened from source.
func (s *Session) ListRecents(ctx context.Context, source Source) ([]string, error) {
	var (
		out []string
		err error
	)
	if source == SourceSave {
		out, err = s.backend.ListRecentSaves(ctx)
	} else {
		out, err = s.backend.ListRecents(ctx)
	}
	if err != nil {
		return nil, opError(KindLoadFailed, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// payload snapshots the annotations for a save or export.
func (s *Session) payload(kind model.SaveKind) (model.AnnotationsPayload, SaveResult, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Loaded {
		return model.AnnotationsPayload{}, SaveResult{}, "", ErrNoFileLoaded
	}
	s.touched = time.Now()
	p, unresolved := s.engine.Payload()
	if unresolved > 0 {
		logger.Warnf("session %s: %s leaves out %d divider span(s) of chunks that were never loaded",
			logger.MaskID(s.ID), kind, unresolved)
	}
	res := SaveResult{Marks: len(p.Marks), Assignments: len(p.Groups.Assignments), Unresolved: unresolved}
	return p, res, s.state.Folder, nil
}

// Save sends marks and groups to the chunk server.
func (s *Session) Save(ctx context.Context) (*SaveResult, error) {
	defer logger.DeferLogDuration("session.Save", time.Now())()
	p, res, folder, err := s.payload(model.SaveKindSave)
	if err != nil {
		return nil, err
	}
	ack, err := s.backend.SaveMarked(ctx, p)
	if err != nil {
		err = opError(KindSaveFailed, err)
		s.notifyError(err)
		return nil, err
	}
	res.Message = ack.Message
	s.metrics.ObserveSave(res.Marks, res.Assignments, res.Unresolved)
	s.record(ctx, model.SaveKindSave, folder, p, res)
	return &res, nil
}

// Export asks the chunk server for an export archive of the annotated messages.
// The caller closes the returned body.
func (s *Session) Export(ctx context.Context) (*backend.Download, *SaveResult, error) {
	defer logger.DeferLogDuration("session.Export", time.Now())()
	p, res, folder, err := s.payload(model.SaveKindExport)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.backend.ExportMarked(ctx, p)
	if err != nil {
		err = opError(KindExportFailed, err)
		s.notifyError(err)
		return nil, nil, err
	}
	s.metrics.ObserveSave(res.Marks, res.Assignments, res.Unresolved)
	s.record(ctx, model.SaveKindExport, folder, p, res)
	return d, &res, nil
}

// Attachment streams an attachment through the chunk server.
func (s *Session) Attachment(ctx context.Context, id string) (*backend.Download, error) {
	d, err := s.backend.Attachment(ctx, id)
	if err != nil {
		return nil, opError(KindLoadFailed, err)
	}
	return d, nil
}

// History returns the journal of saves and exports of this session.
func (s *Session) History(ctx context.Context, limit int) ([]model.SaveLogEntry, error) {
	if s.journal == nil {
		return []model.SaveLogEntry{}, nil
	}
	return s.journal.ListBySession(ctx, s.ID, limit)
}

func (s *Session) record(ctx context.Context, kind model.SaveKind, folder string, p model.AnnotationsPayload, res SaveResult) {
	if s.journal == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		logger.Errorf("session %s: journal payload: %v", logger.MaskID(s.ID), err)
		return
	}
	e := &model.SaveLogEntry{
		SessionID:   s.ID,
		Kind:        kind,
		Folder:      folder,
		Marks:       res.Marks,
		Assignments: res.Assignments,
		Unresolved:  res.Unresolved,
		Payload:     raw,
		Message:     res.Message,
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Errorf("session %s: journal %s: %v", logger.MaskID(s.ID), kind, err)
	}
}

func (s *Session) notifyError(err error) {
	if s.hooks.notify != nil {
		s.hooks.notify(s.ID, EventError, model.ErrorResponse{Error: err.Error()})
	}
}

// changed persists the session and tells listeners about the new state.
func (s *Session) changed(ctx context.Context, event string) {
	if s.hooks.persist != nil {
		s.hooks.persist(ctx, s)
	}
	if s.hooks.notify != nil {
		s.hooks.notify(s.ID, event, s.ViewState())
	}
}

// folderOf names the folder the chunk server extracts an archive into.
func folderOf(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
