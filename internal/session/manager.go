package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
)

// Manager owns the open viewer sessions. Each session holds one Open of its
// target on the engine until it is closed.
type Manager struct {
	engine Engine
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager on top of engine.
func NewManager(engine Engine, logger *zap.Logger) *Manager {
	return &Manager{
		engine:   engine,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create opens targetID and starts a session on it. An empty view starts at
// the first sub-asset (and first device view) of the target.
func (m *Manager) Create(ctx context.Context, targetID string, view models.ViewRequest) (*Session, error) {
	target, err := m.engine.Open(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if view == (models.ViewRequest{}) {
		view = defaultView(target)
	}

	s := &Session{
		id:         uuid.NewString(),
		targetID:   targetID,
		targetType: target.Type,
		engine:     m.engine,
	}
	if err := s.setViewLocked(view); err != nil {
		m.engine.Close(targetID)
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.touchedAt = time.Now()

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("Started session", zap.String("session_id", s.id), zap.String("target_id", targetID))
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// Close ends a session and releases its target.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	m.engine.Close(s.targetID)
	m.logger.Info("Closed session", zap.String("session_id", id), zap.String("target_id", s.targetID))
	return nil
}

// Reap closes the sessions not used for maxIdle and returns how many were
// closed.
func (m *Manager) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.engine.Close(s.targetID)
	}
	if len(idle) > 0 {
		m.logger.Info("Reaped idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.engine.Close(s.targetID)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func defaultView(t *models.AnnotationTarget) models.ViewRequest {
	var v models.ViewRequest
	switch t.Type {
	case models.TargetWebsite:
		if len(t.Pages) > 0 {
			v.PagePath = t.Pages[0].Path
		}
		if len(t.DeviceViews) > 0 {
			v.DeviceView = t.DeviceViews[0]
		}
	case models.TargetMockup:
		if len(t.Images) > 0 {
			v.ImageID = t.Images[0].ID
		}
	case models.TargetVideo:
		if len(t.VideoAssets) > 0 {
			v.VideoAssetID = t.VideoAssets[0].ID
		}
	}
	return v
}
