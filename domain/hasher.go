package domain

// Hasher fingerprints document bytes. Equal content must produce equal keys.
type Hasher interface {
	Hash(data []byte) string
}
