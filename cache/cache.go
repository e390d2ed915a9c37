package cache

// Size limits for the object cache. MaxObjectSize bounds a single
// cached payload; MaxCacheSize bounds the sum of all payloads.
const (
	MaxObjectSize = 102400
	MaxCacheSize  = 1049000
)

// LookupStatus is the outcome of a Store lookup.
type LookupStatus int

const (
	Miss LookupStatus = iota
	Hit
	BufferTooSmall
)

// InsertStatus is the outcome of a Store insert.
type InsertStatus int

const (
	Inserted InsertStatus = iota
	Rejected
)

// Store is a bounded key/value store for cached responses.
// It stores and retrieves []byte payloads keyed by a string (the proxy
// uses the request's host plus path) and evicts least-recently-used
// entries under size pressure.
//
// Implementations must be thread-safe!
type Store interface {
	// Lookup copies the payload stored under key into buf and returns
	// the number of bytes copied. A successful lookup counts as an
	// access for eviction purposes. BufferTooSmall is returned, and the
	// access not recorded, when buf cannot hold the payload.
	Lookup(key string, buf []byte) (int, LookupStatus)
	// Insert stores payload under key, evicting older entries as needed
	// to stay within MaxCacheSize. Payloads larger than MaxObjectSize
	// are Rejected. Inserting an existing key replaces its payload.
	Insert(key string, payload []byte) InsertStatus
	// Purge removes the entry for the given key, if any.
	// It is a utility method used by the management API.
	Purge(key string)
	// Len returns the number of entries.
	Len() int
	// Size returns the total payload bytes held.
	Size() int64
	// Keys calls the given callback for each entry, most recently used
	// first, with the key and its payload size.
	Keys(cb func(key string, size int))
	// Close releases the store's resources. The in-memory LRU evicts
	// all entries; the SQLite store keeps its rows on disk.
	// Called exactly once during teardown.
	Close() error
}
