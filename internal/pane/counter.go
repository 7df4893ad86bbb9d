package pane

// Counter tracks unsaved changes: the number of modified panes plus a dirty
// bit for structure and attribute edits made outside any pane.
type Counter struct {
	panes    int
	dirty    bool
	onChange func(modified bool)
}

// NewCounter returns a counter that calls onChange whenever Modified flips.
// onChange may be nil.
func NewCounter(onChange func(modified bool)) *Counter {
	return &Counter{onChange: onChange}
}

// Panes returns the number of panes with unsaved edits.
func (c *Counter) Panes() int { return c.panes }

// Modified reports whether anything needs saving.
func (c *Counter) Modified() bool { return c.panes > 0 || c.dirty }

// Inc counts one more modified pane.
func (c *Counter) Inc() {
	c.update(func() { c.panes++ })
}

// Dec counts one pane less. The count never drops below zero.
func (c *Counter) Dec() {
	c.update(func() {
		if c.panes > 0 {
			c.panes--
		}
	})
}

// MarkDirty records a change made outside any pane.
func (c *Counter) MarkDirty() {
	c.update(func() { c.dirty = true })
}

// Reset clears the dirty bit and the pane count.
func (c *Counter) Reset() {
	c.update(func() {
		c.panes = 0
		c.dirty = false
	})
}

func (c *Counter) update(fn func()) {
	before := c.Modified()
	fn()
	if after := c.Modified(); after != before && c.onChange != nil {
		c.onChange(after)
	}
}
