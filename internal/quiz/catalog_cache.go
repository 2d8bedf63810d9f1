package quiz

import "time"

// Cache-specific helpers are isolated here so catalog.go can focus on orchestration.

type cachedDefinition struct {
	definition Definition
	expiresAt  time.Time
}

func (c *Catalog) getCached(quizID string) (Definition, bool) {
	c.mu.RLock()
	entry, ok := c.local[quizID]
	c.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.dropCached(quizID)
		return Definition{}, false
	}
	// Definitions are immutable once cached; callers treat slices as read-only.
	return entry.definition, true
}

func (c *Catalog) setCached(definition Definition) {
	c.mu.Lock()
	c.local[definition.QuizID] = cachedDefinition{
		definition: definition,
		expiresAt:  c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *Catalog) dropCached(quizID string) {
	c.mu.Lock()
	delete(c.local, quizID)
	c.mu.Unlock()
}
