// Package localstate provides the client's durable key/value storage.
// Records are opaque JSON blobs written and read whole; the resumable
// device-auth flow and the authenticated session both live here.
package localstate

import "errors"

// Storage keys. The names match the browser localStorage keys used by the
// LangChef web client so that tooling reading either store agrees.
const (
	KeyUser          = "user"
	KeyToken         = "token"
	KeySessionExpiry = "sessionExpiry"
	KeyPollingState  = "awsSSOPollingState"
)

// ErrNotFound indicates the key has no stored value.
var ErrNotFound = errors.New("localstate: key not found")

// Store is a whole-record key/value store. Writers always replace the full
// value for a key; there are no partial updates, so last-writer-wins is the
// only discipline required.
type Store interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases the underlying resources.
	Close() error
}
