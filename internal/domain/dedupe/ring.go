package dedupe

import (
	"encoding/json"
)

// DefaultRingSize is the number of digests kept when no size is given.
const DefaultRingSize = 100

// Ring is a bounded set of digests. The newest Cap() digests are kept and
// the oldest is evicted on overflow. Lookups are O(1). Ring is not safe for
// concurrent use.
type Ring struct {
	buf   []string
	next  int
	count int
	index map[string]struct{}
}

// NewRing creates a ring holding at most size digests.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		buf:   make([]string, size),
		index: make(map[string]struct{}, size),
	}
}

// Contains reports whether digest is retained.
func (r *Ring) Contains(digest string) bool {
	_, ok := r.index[digest]
	return ok
}

// Add records digest. It returns false when the digest was already present.
func (r *Ring) Add(digest string) bool {
	if r.Contains(digest) {
		return false
	}
	if r.count == len(r.buf) {
		delete(r.index, r.buf[r.next])
	} else {
		r.count++
	}
	r.buf[r.next] = digest
	r.index[digest] = struct{}{}
	r.next = (r.next + 1) % len(r.buf)
	return true
}

// Len returns the number of retained digests.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Digests returns the retained digests from oldest to newest.
func (r *Ring) Digests() []string {
	out := make([]string, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

type ringJSON struct {
	Size    int      `json:"size"`
	Digests []string `json:"digests"`
}

// MarshalJSON encodes the ring as its size and ordered digests.
func (r *Ring) MarshalJSON() ([]byte, error) {
	return json.Marshal(ringJSON{Size: len(r.buf), Digests: r.Digests()})
}

// UnmarshalJSON restores a ring. Extra digests beyond size keep the newest.
func (r *Ring) UnmarshalJSON(data []byte) error {
	var v ringJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = *NewRing(v.Size)
	for _, d := range v.Digests {
		r.Add(d)
	}
	return nil
}

// Resize returns a ring of the given size holding the newest digests of r.
func (r *Ring) Resize(size int) *Ring {
	out := NewRing(size)
	for _, d := range r.Digests() {
		out.Add(d)
	}
	return out
}
