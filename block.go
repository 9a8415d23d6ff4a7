package nffs

// blockEntry is a live data block. Like inodeEntry it is backed by a
// *hashEntry linked into the hash table; it carries no further tree role
// of its own beyond the fields needed to walk the reverse chain
// (spec.md §3 "Block").
type blockEntry struct {
	he *hashEntry

	inodeID uint32
	prevID  uint32 // idNone for the first block in a file
	seq     uint32
	dataLen uint16
}

func newBlockEntry(id uint32, loc flashLoc, inodeID, prevID uint32, seq uint32, dataLen uint16) *blockEntry {
	e := &blockEntry{
		inodeID: inodeID,
		prevID:  prevID,
		seq:     seq,
		dataLen: dataLen,
	}
	e.he = &hashEntry{id: id, loc: loc, owner: e}
	return e
}

func (e *blockEntry) id() uint32        { return e.he.id }
func (e *blockEntry) loc() flashLoc     { return e.he.loc }
func (e *blockEntry) setLoc(l flashLoc) { e.he.loc = l }
