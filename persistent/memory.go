package persistent

// NewMemoryStore creates new in-memory "persistent" store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore defines "persistent" in-memory store. Used for testing.
type MemoryStore struct {
	data []byte
}

// Write writes data to the store.
func (s *MemoryStore) Write(data []byte) error {
	s.data = append(s.data, data...)
	return nil
}

// Sync does nothing.
func (s *MemoryStore) Sync() error {
	return nil
}

// Bytes returns everything written to the store.
func (s *MemoryStore) Bytes() []byte {
	return s.data
}
