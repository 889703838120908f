package scope

import (
	"github.com/pinreview/backend/internal/models"
)

// Composer is the comment-composition state of one viewer: whether the
// popover is open, where the pending pin is and which scope it was placed in.
//
// The composer is bound to a scope. Moving to another scope closes it and
// drops the pending pin, so coordinates from one scope can never be
// submitted into another.
type Composer struct {
	scope        models.ScopeKey
	open         bool
	pending      *models.Position
	pendingRange *models.TimeRange
}

// NewComposer returns a closed composer bound to key.
func NewComposer(key models.ScopeKey) *Composer {
	return &Composer{scope: key}
}

// Scope returns the scope the composer is bound to.
func (c *Composer) Scope() models.ScopeKey {
	return c.scope
}

// SetScope rebinds the composer. It reports whether the scope changed, in
// which case any open composition was discarded.
func (c *Composer) SetScope(key models.ScopeKey) bool {
	if key == c.scope {
		return false
	}
	c.scope = key
	c.Cancel()
	return true
}

// Place opens the composer with a pending pin at pos. A video comment also
// gets its initial time range.
func (c *Composer) Place(pos models.Position, rng *models.TimeRange) {
	p := pos
	c.pending = &p
	c.pendingRange = nil
	if rng != nil {
		r := *rng
		c.pendingRange = &r
	}
	c.open = true
}

// Cancel closes the composer and drops the pending pin.
func (c *Composer) Cancel() {
	c.open = false
	c.pending = nil
	c.pendingRange = nil
}

// Open reports whether the composition popover is open.
func (c *Composer) Open() bool {
	return c.open
}

// Pending returns the pending pin and time range, if any.
func (c *Composer) Pending() (*models.Position, *models.TimeRange) {
	if !c.open {
		return nil, nil
	}
	return c.pending, c.pendingRange
}
