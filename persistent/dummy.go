package persistent

// NewDummyStore creates new dummy store.
func NewDummyStore() *DummyStore {
	return &DummyStore{}
}

// DummyStore defines no-op store counting written bytes. Used in benchmarks.
type DummyStore struct {
	size uint64
}

// Write is a no-op implementation.
func (s *DummyStore) Write(data []byte) error {
	s.size += uint64(len(data))
	return nil
}

// Sync does nothing.
func (s *DummyStore) Sync() error {
	return nil
}

// Size returns the number of bytes written so far.
func (s *DummyStore) Size() uint64 {
	return s.size
}
