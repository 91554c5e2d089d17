package session

import (
	"context"
	"time"

	"github.com/sessionedit/internal/annotation"
)

// ToggleMarkMode switches mark mode and returns the new state.
func (s *Session) ToggleMarkMode(ctx context.Context) bool {
	s.mu.Lock()
	on := s.engine.ToggleMarkMode()
	s.touched = time.Now()
	s.mu.Unlock()
	s.changed(ctx, EventStateChanged)
	return on
}

// ToggleDividerMode switches divider mode and returns the new state.
func (s *Session) ToggleDividerMode(ctx context.Context) bool {
	s.mu.Lock()
	on := s.engine.ToggleDividerMode()
	s.touched = time.Now()
	s.mu.Unlock()
	s.changed(ctx, EventStateChanged)
	return on
}

// Click applies a primary click on a message of the current chunk.
func (s *Session) Click(ctx context.Context, key annotation.MessageKey, shift bool, p annotation.Prompter) (annotation.Result, error) {
	s.mu.Lock()
	if err := s.checkShown(key); err != nil {
		s.mu.Unlock()
		return annotation.Result{}, err
	}
	res := s.engine.Click(key, shift, p)
	s.touched = time.Now()
	s.mu.Unlock()
	if res.Action != annotation.ActionNone {
		s.changed(ctx, EventStateChanged)
	}
	return res, nil
}

// SecondaryClick applies the remove gesture on a message of the current chunk.
func (s *Session) SecondaryClick(ctx context.Context, key annotation.MessageKey, p annotation.Prompter) (annotation.Result, error) {
	s.mu.Lock()
	if err := s.checkShown(key); err != nil {
		s.mu.Unlock()
		return annotation.Result{}, err
	}
	res := s.engine.SecondaryClick(key, p)
	s.touched = time.Now()
	s.mu.Unlock()
	if res.Action != annotation.ActionNone {
		s.changed(ctx, EventStateChanged)
	}
	return res, nil
}

// checkShown rejects keys outside the displayed chunk. Callers hold s.mu.
func (s *Session) checkShown(key annotation.MessageKey) error {
	if !s.state.Loaded || s.state.Chunk == nil {
		return ErrNoFileLoaded
	}
	if key.Chunk != s.state.ChunkIndex || key.Position >= len(s.state.Chunk.Messages) {
		return ErrUnknownMessage
	}
	return nil
}

// SetShowDisplayNames switches between account names and nicknames.
func (s *Session) SetShowDisplayNames(ctx context.Context, show bool) {
	s.mu.Lock()
	s.view.ShowDisplayNames = show
	s.mu.Unlock()
	s.changed(ctx, EventStateChanged)
}

// ReloadImages bumps the key appended to attachment URLs so browsers fetch them again.
func (s *Session) ReloadImages(ctx context.Context) int64 {
	s.mu.Lock()
	key := time.Now().UnixMilli()
	if key <= s.view.ImagesReloadKey {
		key = s.view.ImagesReloadKey + 1
	}
	s.view.ImagesReloadKey = key
	s.mu.Unlock()
	s.changed(ctx, EventStateChanged)
	return key
}
