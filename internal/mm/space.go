package mm

import "fmt"

// AddressSpace is the translation root of one process. It tracks the ranges
// mapped by attached regions so that overlapping attachments are refused.
type AddressSpace struct {
	maps map[uintptr]*Region
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{maps: make(map[uintptr]*Region)}
}

// Map records r at start. It fails if start is not page aligned or the range
// overlaps an existing mapping.
func (as *AddressSpace) Map(start uintptr, r *Region) error {
	if start%PageSize != 0 {
		return fmt.Errorf("map at %#x: address not page aligned", start)
	}
	end := start + r.Size()
	for s, m := range as.maps {
		if start < s+m.Size() && s < end {
			return fmt.Errorf("map [%#x,%#x): overlaps region at %#x", start, end, s)
		}
	}
	as.maps[start] = r
	return nil
}

// Unmap removes the mapping at start.
func (as *AddressSpace) Unmap(start uintptr) {
	delete(as.maps, start)
}


// Len returns the number of mappings.
func (as *AddressSpace) Len() int {
	return len(as.maps)
}
