package cache

// NoopCache stores nothing. Every lookup misses.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key Key) ([]byte, bool) {
	return nil, false
}

func (c *NoopCache) Set(key Key, value []byte) error {
	return nil
}

func (c *NoopCache) Has(key Key) bool {
	return false
}

func (c *NoopCache) Clear() error {
	return nil
}

func (c *NoopCache) Close() error {
	return nil
}
