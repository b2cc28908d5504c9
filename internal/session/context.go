package session

import (
	"log/slog"
	"sync"
)

// Context holds the currently open session, if any.
type Context struct {
	mu      sync.RWMutex
	current *Session
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{}
}

// Current returns the open session, or nil.
func (c *Context) Current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Set makes s the open session and closes the one it replaces.
func (c *Context) Set(s *Session) error {
	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()

	if prev != nil && prev != s {
		return prev.Close()
	}
	return nil
}

// Close closes the open session, if any.
func (c *Context) Close() error {
	return c.Set(nil)
}

// LogAttrs describes the open session for log records; it is empty when no
// recording is open.
func (c *Context) LogAttrs() []slog.Attr {
	if s := c.Current(); s != nil {
		return s.LogAttrs()
	}
	return nil
}
