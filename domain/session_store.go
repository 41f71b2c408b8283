package domain

// SessionStore owns the lifecycle of sessions across requests.
type SessionStore interface {
	Create() (*Session, error)
	Get(id string) (*Session, error)
	// Dispose removes the session and clears its state. Disposing an
	// unknown id returns ErrSessionNotFound.
	Dispose(id string) error
}

// DocumentCache remembers uploaded documents by content hash.
type DocumentCache interface {
	Get(hash string) (DocumentReference, bool)
	Put(hash string, doc DocumentReference)
}
