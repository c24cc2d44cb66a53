package snapshot

import (
	"bytes"
	"sync"
)

// Sink is the outbound bus.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// Cache remembers the last payload published per topic. Entries are never
// evicted.
type Cache struct {
	mu   sync.Mutex
	last map[string][]byte
}

func NewCache() *Cache {
	return &Cache{last: make(map[string][]byte)}
}

// PublishIfChanged publishes payload unless it equals the cached payload for
// topic byte for byte. The cache is updated only after a successful publish.
func (c *Cache) PublishIfChanged(sink Sink, topic string, payload []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.last[topic]; ok && bytes.Equal(prev, payload) {
		return false, nil
	}
	if err := sink.Publish(topic, payload); err != nil {
		return false, err
	}
	c.last[topic] = append([]byte(nil), payload...)
	return true, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Get returns the cached payload for topic.
func (c *Cache) Get(topic string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.last[topic]
	return p, ok
}
