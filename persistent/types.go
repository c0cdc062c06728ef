package persistent

// Store is the sink dump is written to.
type Store interface {
	Write(data []byte) error
	Sync() error
}
