package nffs

// inodeEntry is a live directory or file. Its *hashEntry is the node
// actually linked into the hash table's bucket chains; inodeEntry carries
// the tree-shaped state spec.md §3/§4.4 describe on top of it: a
// refcount, a sibling link within its parent's sorted child list, and a
// tagged payload that is either a child-list head (directory) or the
// tail of the reverse block chain (file). The two payload roles never
// coexist for one entry, so they are plain alternative fields rather
// than a shared union — Go gives no memory-safety benefit to aliasing
// them, unlike the C original this is modeled on.
type inodeEntry struct {
	he *hashEntry

	parentID uint32 // idNone for the root or a pending deletion
	seq      uint32 // sequence number; a rewrite at a new location bumps this
	refcnt   uint8
	sibling  *inodeEntry // next entry in parent's child list

	nameLen    uint8
	namePrefix [shortNameLen]byte // first bytes of the filename, cached

	isDir bool

	// valid when isDir
	children *inodeEntry

	// valid when !isDir
	lastBlock *hashEntry
}

func newInodeEntry(id uint32, loc flashLoc, parentID uint32, name []byte, isDir bool) *inodeEntry {
	e := &inodeEntry{
		parentID: parentID,
		isDir:    isDir,
	}
	e.he = &hashEntry{id: id, loc: loc, owner: e}
	e.setName(name)
	return e
}

func (e *inodeEntry) id() uint32     { return e.he.id }
func (e *inodeEntry) loc() flashLoc  { return e.he.loc }
func (e *inodeEntry) setLoc(l flashLoc) { e.he.loc = l }

func (e *inodeEntry) setName(name []byte) {
	e.nameLen = uint8(len(name))
	// name may alias e.namePrefix (entryName returns it for short names),
	// so copy first and only then clear the unused tail.
	n := copy(e.namePrefix[:], name)
	for i := n; i < len(e.namePrefix); i++ {
		e.namePrefix[i] = 0
	}
}

// fullNameNeeded reports whether resolving a comparison against this
// entry requires a flash read of the complete filename (spec.md §4.4's
// "two-half flash-read comparator").
func (e *inodeEntry) fullNameNeeded() bool {
	return int(e.nameLen) > shortNameLen
}

func (e *inodeEntry) incref() {
	e.refcnt++
}

// decref drops the refcount, reporting whether the entry is now both
// unreferenced and unparented and therefore eligible to be freed from RAM
// (spec.md §3 invariant 7).
func (e *inodeEntry) decref() bool {
	if e.refcnt > 0 {
		e.refcnt--
	}
	return e.refcnt == 0 && e.parentID == idNone
}
