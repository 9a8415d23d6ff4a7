package nffs

const hashBuckets = 256

// hashEntry is the base of every live object tracked in RAM: a directory,
// a file, or a data block (spec.md §3 "Hash entry"). inodeEntry and
// blockEntry each hold a pointer to one.
//
// next serves two disjoint roles over its lifetime: while the entry is
// indexed, it links within its hash bucket; once removed from the index
// (spec.md §4.3), the same field is reused to splice the entry onto the
// transient unlink worklist (queueRecursiveUnlink). An entry is never a member of both lists
// at once.
type hashEntry struct {
	id   uint32
	loc  flashLoc
	next *hashEntry

	// owner recovers the typed object (*inodeEntry or *blockEntry) this
	// hash entry belongs to. Set once at allocation time.
	owner any
}

func (e *hashEntry) asInode() *inodeEntry {
	if e == nil {
		return nil
	}
	ino, _ := e.owner.(*inodeEntry)
	return ino
}

func (e *hashEntry) asBlock() *blockEntry {
	if e == nil {
		return nil
	}
	blk, _ := e.owner.(*blockEntry)
	return blk
}

// hashIndex is a fixed 256-bucket open-chain hash table keyed by id mod
// 256. Lookups promote the hit to the head of its bucket (MRU-on-access).
type hashIndex struct {
	buckets [hashBuckets]*hashEntry
}

func bucketOf(id uint32) int {
	return int(id % hashBuckets)
}

// find returns the entry for id, promoting it to the head of its bucket.
func (h *hashIndex) find(id uint32) *hashEntry {
	b := bucketOf(id)
	var prev *hashEntry
	cur := h.buckets[b]
	for cur != nil {
		if cur.id == id {
			if prev != nil {
				prev.next = cur.next
				cur.next = h.buckets[b]
				h.buckets[b] = cur
			}
			return cur
		}
		prev = cur
		cur = cur.next
	}
	return nil
}

// insert pushes e at the head of its bucket. e must not already be linked.
func (h *hashIndex) insert(e *hashEntry) {
	b := bucketOf(e.id)
	e.next = h.buckets[b]
	h.buckets[b] = e
}

// remove delinks e from its bucket. It is a no-op if e is not indexed.
func (h *hashIndex) remove(e *hashEntry) {
	b := bucketOf(e.id)
	var prev *hashEntry
	cur := h.buckets[b]
	for cur != nil {
		if cur == e {
			if prev == nil {
				h.buckets[b] = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return
		}
		prev = cur
		cur = cur.next
	}
}

// all returns every entry currently indexed, used by GC to discover live
// objects region by region.
func (h *hashIndex) all() []*hashEntry {
	var out []*hashEntry
	for _, b := range h.buckets {
		for e := b; e != nil; e = e.next {
			out = append(out, e)
		}
	}
	return out
}
