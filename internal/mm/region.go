package mm

import "sync"

// Region is a unit of address-space content shared by every process that
// attaches it. Count equals the number of live attachments; the lock
// serializes duplication and any change to the count.
type Region struct {
	mu     sync.Mutex
	count  int
	pages  int
	shared bool

	// Data is the region content. It is copied on duplication unless the
	// region is shared.
	Data []byte
}

// NewRegion creates an unattached region of the given number of pages.
func NewRegion(pages int, shared bool) *Region {
	return &Region{
		pages:  pages,
		shared: shared,
		Data:   make([]byte, pages*PageSize),
	}
}

// Lock acquires the region lock.
func (r *Region) Lock() { r.mu.Lock() }

// Unlock releases the region lock.
func (r *Region) Unlock() { r.mu.Unlock() }

// Pages returns the size of the region in pages.
func (r *Region) Pages() int { return r.pages }

// Shared reports whether duplicating the region shares it instead of copying.
func (r *Region) Shared() bool { return r.shared }

// Size returns the region size in bytes.
func (r *Region) Size() uintptr { return uintptr(r.pages) * PageSize }

// Count returns the number of attachments. The caller must hold the lock or
// otherwise know that the count cannot change.
func (r *Region) Count() int { return r.count }

// Ref adds one attachment. Caller holds the lock.
func (r *Region) Ref() { r.count++ }

// Unref drops one attachment and reports whether it was the last one.
// Caller holds the lock.
func (r *Region) Unref() bool {
	if r.count <= 0 {
		panic("mm: region reference count underflow")
	}
	r.count--
	return r.count == 0
}

// Clone returns an unattached private copy of r. Caller holds r's lock.
func (r *Region) Clone() *Region {
	c := &Region{pages: r.pages, shared: r.shared}
	c.Data = make([]byte, len(r.Data))
	copy(c.Data, r.Data)
	return c
}
