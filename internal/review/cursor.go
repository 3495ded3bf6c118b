package review

// Cursor walks a reviewer's queue, skipping resolved items.
type Cursor struct {
	items []Item
	pos   int
}

// NewCursor returns a cursor positioned at the start of items.
func NewCursor(items []Item) *Cursor {
	return &Cursor{items: items}
}

// Advance moves the cursor forward past every resolved item and returns the
// resulting position. It never moves backwards.
func (c *Cursor) Advance(p Progress) int {
	for c.pos < len(c.items) && p.Done(c.items[c.pos]) {
		c.pos++
	}
	return c.pos
}

// Current returns the item under the cursor. ok is false at end of queue.
func (c *Cursor) Current() (Item, bool) {
	if c.pos >= len(c.items) {
		return Item{}, false
	}
	return c.items[c.pos], true
}

// Position returns the 0-based queue position.
func (c *Cursor) Position() int { return c.pos }

// Len returns the queue length.
func (c *Cursor) Len() int { return len(c.items) }

// Exhausted reports whether the cursor has run off the end of the queue.
func (c *Cursor) Exhausted() bool { return c.pos >= len(c.items) }
