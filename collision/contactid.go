package collision

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// ContactID identifies the same physical contact across steps. It depends only
// on body ordinals and element ancestry, never on detection order.
type ContactID uint64

func (id ContactID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Feature is the stable identity of one side of a contact: the body ordinal
// and the element index, or the ancestor index plus a sub-index for elements
// generated by subdivision.
type Feature struct {
	Ordinal int
	Index   int
	Sub     int
}

func (f Feature) less(o Feature) bool {
	if f.Ordinal != o.Ordinal {
		return f.Ordinal < o.Ordinal
	}
	if f.Index != o.Index {
		return f.Index < o.Index
	}
	return f.Sub < o.Sub
}

// MakeContactID hashes the two features, order-normalized.
func MakeContactID(a, b Feature) ContactID {
	if b.less(a) {
		a, b = b, a
	}
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range [6]int{a.Ordinal, a.Index, a.Sub, b.Ordinal, b.Index, b.Sub} {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	return ContactID(h.Sum64())
}
