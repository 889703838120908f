// Package session keeps the viewer state of each connected UI: the scope it
// looks at, the comment composer, the video playhead and the active
// timeline drag.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pinreview/backend/internal/coords"
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
	"github.com/pinreview/backend/internal/syncer"
	"github.com/pinreview/backend/internal/videorange"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrNoPendingPin is returned by Submit when no pin was placed.
	ErrNoPendingPin = errors.New("no pending pin")
	// ErrNoDrag is returned when moving or ending a drag that never began.
	ErrNoDrag = errors.New("no drag in progress")
	// ErrWrongSurface is returned when a pin is placed with the coordinate
	// system of another target type.
	ErrWrongSurface = errors.New("pin placed on the wrong surface")
)

// Engine is the part of the sync coordinator a session drives.
type Engine interface {
	Open(ctx context.Context, targetID string) (*models.AnnotationTarget, error)
	Close(targetID string)
	Target(targetID string) (*models.AnnotationTarget, error)
	Comments(targetID string) ([]models.Comment, error)
	SubmitComment(ctx context.Context, req syncer.SubmitRequest) (*models.Comment, error)
	SetTimeRange(ctx context.Context, targetID, commentID string, rng models.TimeRange) (*models.Comment, error)
}

// Session is the state of one viewer of a target.
type Session struct {
	id         string
	targetID   string
	targetType models.TargetType
	engine     Engine

	mu        sync.Mutex
	view      scope.ViewerState
	composer  *scope.Composer
	playback  float64
	drag      *videorange.Drag
	touchedAt time.Time
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// TargetID returns the id of the target the session views.
func (s *Session) TargetID() string {
	return s.targetID
}

// SetView moves the session to the scope described by req. Moving to
// another scope closes the composer, drops the pending pin and abandons any
// drag.
func (s *Session) SetView(req models.ViewRequest) (models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setViewLocked(req); err != nil {
		return models.SessionState{}, err
	}
	return s.stateLocked(), nil
}

func (s *Session) setViewLocked(req models.ViewRequest) error {
	view := scope.ViewerState{
		TargetType:   s.targetType,
		TargetID:     s.targetID,
		DeviceView:   req.DeviceView,
		PagePath:     req.PagePath,
		ImageID:      req.ImageID,
		VideoAssetID: req.VideoAssetID,
	}
	key, err := scope.Resolve(view)
	if err != nil {
		return err
	}

	s.view = view
	if s.composer == nil {
		s.composer = scope.NewComposer(key)
		return nil
	}
	if s.composer.SetScope(key) {
		s.drag = nil
		s.playback = 0
	}
	return nil
}

// PlacePin opens the composer with a pin at the pointer position over a
// website or mockup canvas.
func (s *Session) PlacePin(pointerX, pointerY float64, rect models.Rect, zoom float64) (models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.targetType == models.TargetVideo {
		return models.SessionState{}, fmt.Errorf("%w: video pins go on the overlay", ErrWrongSurface)
	}
	s.composer.Place(coords.Place(s.targetType, pointerX, pointerY, rect, zoom), nil)
	return s.stateLocked(), nil
}

// PlaceOverlayPin opens the composer with a pin over the video overlay. The
// pending range starts at the playback time.
func (s *Session) PlaceOverlayPin(pointerX, pointerY float64, overlay models.Rect, playback float64) (models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.targetType != models.TargetVideo {
		return models.SessionState{}, fmt.Errorf("%w: %s pins go on the canvas", ErrWrongSurface, s.targetType)
	}
	duration, err := s.durationLocked()
	if err != nil {
		return models.SessionState{}, err
	}
	s.playback = playback
	rng := videorange.DefaultRange(playback, duration)
	s.composer.Place(coords.Place(s.targetType, pointerX, pointerY, overlay, 1), &rng)
	return s.stateLocked(), nil
}

// Pin places the pending pin with the coordinate system of the target type.
func (s *Session) Pin(req models.PinRequest) (models.SessionState, error) {
	if s.targetType == models.TargetVideo {
		return s.PlaceOverlayPin(req.PointerX, req.PointerY, req.Rect, req.Playback)
	}
	return s.PlacePin(req.PointerX, req.PointerY, req.Rect, req.Zoom)
}

// CancelPin closes the composer.
func (s *Session) CancelPin() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.composer.Cancel()
	return s.stateLocked()
}

// Submit creates a comment from the pending pin. The composer closes only
// when the comment was accepted.
func (s *Session) Submit(ctx context.Context, req models.SessionSubmitRequest) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, rng := s.composer.Pending()
	if pos == nil {
		return nil, ErrNoPendingPin
	}
	created, err := s.engine.SubmitComment(ctx, syncer.SubmitRequest{
		Scope:     s.composer.Scope(),
		Position:  pos,
		TimeRange: rng,
		Text:      req.Text,
		AuthorID:  req.AuthorID,
		DueDate:   req.DueDate,
	})
	if err != nil {
		return nil, err
	}
	s.composer.Cancel()
	return created, nil
}

// SetPlayback records the video playhead.
func (s *Session) SetPlayback(t float64) models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playback = t
	return s.stateLocked()
}

// BeginDrag grabs a handle of a video comment's range on a track of
// trackWidth pixels.
func (s *Session) BeginDrag(commentID, mode string, pointerX, trackWidth float64) (models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := videorange.ParseMode(mode)
	if err != nil {
		return models.SessionState{}, err
	}
	comment, err := s.commentLocked(commentID)
	if err != nil {
		return models.SessionState{}, err
	}
	if comment.TimeRange == nil {
		return models.SessionState{}, fmt.Errorf("%w: comment %s has no time range", videorange.ErrBadDrag, commentID)
	}
	duration, err := s.durationLocked()
	if err != nil {
		return models.SessionState{}, err
	}

	drag, err := videorange.Begin(commentID, m, pointerX, trackWidth, duration, *comment.TimeRange)
	if err != nil {
		return models.SessionState{}, err
	}
	s.drag = drag
	return s.stateLocked(), nil
}

// MoveDrag updates the drag preview. Nothing is written.
func (s *Session) MoveDrag(pointerX float64) (models.TimeRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag == nil {
		return models.TimeRange{}, ErrNoDrag
	}
	return s.drag.Move(pointerX), nil
}

// EndDrag releases the drag and commits the range once, if it changed. It
// returns the final range and whether a write was issued.
func (s *Session) EndDrag(ctx context.Context) (models.TimeRange, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drag := s.drag
	if drag == nil {
		return models.TimeRange{}, false, ErrNoDrag
	}
	s.drag = nil

	rng := drag.Current()
	if !drag.Changed() {
		return rng, false, nil
	}
	if _, err := s.engine.SetTimeRange(ctx, s.targetID, drag.CommentID, rng); err != nil {
		return models.TimeRange{}, false, err
	}
	return rng, true, nil
}

// Visible returns the comments of the session's scope with the drag preview
// overlaid and, for video, the active flags at the playhead.
func (s *Session) Visible() ([]models.VisibleComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.engine.Comments(s.targetID)
	if err != nil {
		return nil, err
	}
	comments := scope.Filter(all, s.composer.Scope())

	out := make([]models.VisibleComment, 0, len(comments))
	for _, c := range comments {
		vc := models.VisibleComment{Comment: c}
		if s.drag != nil && s.drag.CommentID == c.ID {
			preview := s.drag.Current()
			vc.TimeRange = &preview
			vc.Dragging = true
		}
		if s.targetType == models.TargetVideo {
			vc.Active = videorange.IsActive(&vc.Comment, s.playback)
		}
		out = append(out, vc)
	}
	return out, nil
}

// Select focuses a comment. For video comments it moves the playhead to the
// start of the range and returns that time.
func (s *Session) Select(commentID string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, err := s.commentLocked(commentID)
	if err != nil {
		return 0, false, err
	}
	t, ok := videorange.SeekTime(&comment)
	if ok {
		s.playback = t
	}
	return t, ok, nil
}

// State returns the client visible state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() models.SessionState {
	s.touchedAt = time.Now()
	state := models.SessionState{
		ID:           s.id,
		TargetID:     s.targetID,
		Scope:        s.composer.Scope(),
		ComposerOpen: s.composer.Open(),
		Playback:     s.playback,
		DragMode:     videorange.None.String(),
	}
	state.PendingPin, state.PendingRange = s.composer.Pending()
	if s.drag != nil {
		state.DragMode = s.drag.Mode().String()
		preview := s.drag.Current()
		state.DragPreview = &preview
	}
	return state
}

// commentLocked finds a comment of the session's scope.
func (s *Session) commentLocked(commentID string) (models.Comment, error) {
	all, err := s.engine.Comments(s.targetID)
	if err != nil {
		return models.Comment{}, err
	}
	for _, c := range scope.Filter(all, s.composer.Scope()) {
		if c.ID == commentID {
			return c, nil
		}
	}
	return models.Comment{}, fmt.Errorf("comment %s: %w", commentID, syncer.ErrNotFound)
}

func (s *Session) durationLocked() (float64, error) {
	target, err := s.engine.Target(s.targetID)
	if err != nil {
		return 0, err
	}
	asset, ok := target.VideoAsset(s.composer.Scope().SubScopeID)
	if !ok {
		return 0, fmt.Errorf("video asset %s: %w", s.composer.Scope().SubScopeID, syncer.ErrNotFound)
	}
	return asset.Duration, nil
}

func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt.Before(t)
}
