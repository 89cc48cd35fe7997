package registry

import (
	"bytes"
	"net/netip"
	"sync"
	"time"
)

// Client is the registry-managed part of a per-client record.
//
// The address is kept as an owned byte buffer (4 octets for IPv4, 16 for
// IPv6); Addr and AddrBytes are views of it. LastUpdate belongs to the
// collaborators: they must hold the client lock while reading or writing it.
type Client struct {
	addr []byte
	ref  RefCount
	mu   sync.Mutex

	// LastUpdate is the monotonic time (since process start) of the last
	// activity recorded for this client. Guarded by Lock/Unlock.
	LastUpdate time.Duration
}

// Ref implements Entry.
func (c *Client) Ref() *RefCount { return &c.ref }

// ClientEntry implements ClientRecord for a bare Client.
func (c *Client) ClientEntry() *Client { return c }

// Addr returns the client's address.
func (c *Client) Addr() netip.Addr {
	a, _ := netip.AddrFromSlice(c.addr)
	return a
}

// AddrBytes returns the address buffer. The slice is borrowed: callers must
// not modify or retain it beyond the lifetime of their handle.
func (c *Client) AddrBytes() []byte {
	return c.addr
}

// Refs returns the current reference count.
func (c *Client) Refs() int64 { return c.ref.Load() }

// Removed reports whether the client was unlinked from its registry.
func (c *Client) Removed() bool { return c.ref.Removed() }

// Lock acquires the per-client mutex guarding collaborator-owned fields of
// the enclosing record. The registry never takes it.
func (c *Client) Lock() { c.mu.Lock() }

// Unlock releases the per-client mutex.
func (c *Client) Unlock() { c.mu.Unlock() }

// ClientRecord is a record that owns a Client as a named field. Ref must
// return the Client's own count.
type ClientRecord interface {
	Entry
	ClientEntry() *Client
}

// ClientRegistry indexes client records by network address.
//
// Addresses are compared on their raw bytes after unmapping IPv4-mapped
// IPv6 addresses, so ::ffff:10.0.0.1 and 10.0.0.1 are the same client.
// Ports and zones are not part of the key.
type ClientRegistry[R ClientRecord] struct {
	reg *Registry[netip.Addr, R]
}

// ClientKey returns the canonical key bytes for addr.
func ClientKey(addr netip.Addr) []byte {
	return addr.Unmap().WithZone("").AsSlice()
}

var clientCodec = KeyCodec[netip.Addr]{
	Encode:  func(a netip.Addr) any { return ClientKey(a) },
	Compare: compareKeyBytes,
	Describe: func(k any) string {
		b, _ := k.([]byte)
		a, ok := netip.AddrFromSlice(b)
		if !ok {
			return "client <invalid>"
		}
		return "client " + a.String()
	},
}

// compareKeyBytes orders encoded client keys bytewise.
func compareKeyBytes(a, b any) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

// NewClientRegistry creates an empty client registry.
//
// alloc builds a zeroed record; the registry fills in the address buffer and
// the reference count of its Client.
func NewClientRegistry[R ClientRecord](alloc func() (R, error), opts ...Option[R]) *ClientRegistry[R] {
	if alloc == nil {
		panic("registry: client allocator cannot be nil")
	}
	return &ClientRegistry[R]{
		reg: New("client", clientCodec, func(a netip.Addr) (R, error) {
			rec, err := alloc()
			if err != nil {
				return rec, err
			}
			rec.ClientEntry().addr = ClientKey(a)
			return rec, nil
		}, opts...),
	}
}

// GetOrCreate returns a referenced handle for addr; see Registry.GetOrCreate.
// An invalid (zero) address is never found nor created.
func (r *ClientRegistry[R]) GetOrCreate(addr netip.Addr, lookupOnly bool) (R, bool) {
	if !addr.IsValid() {
		var zero R
		return zero, false
	}
	return r.reg.GetOrCreate(addr, lookupOnly)
}

// Lookup is GetOrCreate in lookup-only mode.
func (r *ClientRegistry[R]) Lookup(addr netip.Addr) (R, bool) {
	return r.GetOrCreate(addr, true)
}

// Release drops a reference; see Registry.Release.
func (r *ClientRegistry[R]) Release(rec R) {
	r.reg.Release(rec)
}

// Remove unlinks the client for addr; see Registry.Remove.
func (r *ClientRegistry[R]) Remove(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	return r.reg.Remove(addr)
}

// ForEach visits clients in ascending address order; see Registry.ForEach.
func (r *ClientRegistry[R]) ForEach(fn func(R) bool) int {
	return r.reg.ForEach(fn)
}

// Len returns the number of indexed clients.
func (r *ClientRegistry[R]) Len() int {
	return r.reg.Len()
}
