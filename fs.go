package nffs

import (
	"log"
	"sync"
)

const regionHeaderOverhead = regionHeaderSize

// Filesystem is a mounted (or formatted) NFFS instance: the single handle
// that owns every in-RAM resource — regions, hash index, pools, cache,
// root/lost+found pointers — behind one mutex (spec.md §5, §9 "Global
// mutable state... model as a single filesystem handle").
type Filesystem struct {
	mu sync.Mutex

	dev     Device
	regions *regionSet
	hash    hashIndex
	ids     *idAllocator
	pools   *poolSet
	cache   *blockCache
	log     *log.Logger

	root      *inodeEntry
	lostFound *inodeEntry

	byID map[uint32]*inodeEntry // inode-id -> inodeEntry, maintained alongside hash

	maxBlockData int

	cfg Config
}

// New creates an unmounted Filesystem handle bound to dev. Call Format or
// Mount before performing any other operation.
func New(dev Device, opts ...Option) *Filesystem {
	cfg := Config{Pools: defaultPoolConfig(), Logger: defaultLogger()}
	for _, o := range opts {
		o(&cfg)
	}
	return &Filesystem{dev: dev, cfg: cfg, log: cfg.Logger}
}

// reset rebuilds every in-RAM structure from cfg, discarding whatever was
// mounted before. Called by both Format and Mount.
func (fsys *Filesystem) reset(areas []AreaDesc) error {
	if len(areas) < 2 {
		return ErrUnexpected
	}
	fsys.regions = newRegionSet(fsys.dev, areas)
	fsys.hash = hashIndex{}
	fsys.ids = newIDAllocator()
	fsys.pools = newPoolSet(fsys.cfg.Pools)
	fsys.cache = newBlockCache(fsys.pools)
	fsys.byID = make(map[uint32]*inodeEntry)
	fsys.root = nil
	fsys.lostFound = nil
	fsys.maxBlockData = computeMaxBlockData(areas)
	return nil
}

// computeMaxBlockData applies spec.md §3 invariant 6 / §4.7: the smaller
// of 2048 and the capacity that guarantees two full blocks fit in the
// smallest region, so GC can always relocate any single live block.
func computeMaxBlockData(areas []AreaDesc) int {
	if len(areas) == 0 {
		return 2048
	}
	smallest := areas[0].Length
	for _, a := range areas[1:] {
		if a.Length < smallest {
			smallest = a.Length
		}
	}
	cap2 := (int(smallest) - regionHeaderOverhead) / 2 - blockRecordSize
	if cap2 > 2048 {
		return 2048
	}
	if cap2 < 0 {
		return 0
	}
	return cap2
}

// Format erases every area, designates the largest as scratch, writes
// region headers, and creates an empty root directory (spec.md §6).
func (fsys *Filesystem) Format(areas []AreaDesc) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if err := fsys.reset(areas); err != nil {
		return err
	}

	for idx := range fsys.regions.regions {
		if err := fsys.regions.eraseRegion(idx); err != nil {
			return err
		}
	}

	scratchIdx := largestRegion(fsys.regions.regions)
	for idx, r := range fsys.regions.regions {
		id := uint8(idx)
		if idx == scratchIdx {
			id = areaIDNone
		}
		r.id = id
		r.gcSeq = 0
		hdr := newRegionHeader(r.length, 0, id)
		if _, err := fsys.regions.append(idx, hdr.marshal()); err != nil {
			return err
		}
	}

	root := newInodeEntry(idRoot, locNone, idNone, nil, true)
	if err := fsys.writeInodeRecord(root, nil); err != nil {
		return err
	}
	fsys.insertInode(root)
	fsys.root = root
	fsys.log.Printf("nffs: formatted %d areas, scratch=%d, max block data=%d", len(areas), scratchIdx, fsys.maxBlockData)
	return nil
}

func largestRegion(regions []*region) int {
	best := 0
	for i, r := range regions {
		if r.length > regions[best].length {
			best = i
		}
	}
	return best
}

// Mount runs the restore pass over areas. If it fails with ErrCorrupt the
// caller may call Format.
func (fsys *Filesystem) Mount(areas []AreaDesc) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if err := fsys.reset(areas); err != nil {
		return err
	}
	return fsys.restore()
}

// insertInode indexes e by both the hash table and the id->entry map used
// for O(1) parent/child resolution outside the child-list walk.
func (fsys *Filesystem) insertInode(e *inodeEntry) {
	fsys.hash.insert(e.he)
	fsys.byID[e.id()] = e
}

func (fsys *Filesystem) lookupInode(id uint32) *inodeEntry {
	if id == idNone {
		return nil
	}
	return fsys.byID[id]
}

// readInodeName implements nameReader by reading exactly the cached
// filename length from e's flash location.
func (fsys *Filesystem) readInodeName(e *inodeEntry) ([]byte, error) {
	if e.loc() == locNone {
		return nil, ErrCorrupt
	}
	buf, err := fsys.regions.read(e.loc(), inodeRecordSize+int(e.nameLen))
	if err != nil {
		return nil, err
	}
	_, name, err := unmarshalInodeRecord(buf)
	if err != nil {
		return nil, err
	}
	return name, nil
}

// readBlockData reads and validates the full record (header+data) for a
// live block entry.
func (fsys *Filesystem) readBlockData(b *blockEntry) ([]byte, error) {
	buf, err := fsys.regions.read(b.loc(), blockRecordSize+int(b.dataLen))
	if err != nil {
		return nil, err
	}
	_, data, err := unmarshalBlockRecord(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// writeInodeRecord reserves space and appends a fresh inode record for e,
// allocating GC help as needed, then updates e's flash location.
func (fsys *Filesystem) writeInodeRecord(e *inodeEntry, name []byte) error {
	nlen := len(name)
	if nlen == 0 {
		nlen = int(e.nameLen)
	}
	need := uint32(inodeRecordSize + nlen)
	idx, off, err := fsys.reserve(need)
	if err != nil {
		return err
	}
	rec := &inodeRecord{Magic: magicInode, ID: e.id(), Seq: e.seq, ParentID: e.parentID}
	var nameBytes []byte
	if len(name) > 0 {
		nameBytes = name
	} else {
		nameBytes = e.namePrefix[:min8(e.nameLen, shortNameLen)]
		if e.fullNameNeeded() {
			full, ferr := fsys.readInodeName(e)
			if ferr == nil {
				nameBytes = full
			}
		}
	}
	data := rec.marshal(nameBytes)
	if _, err := fsys.regions.append(idx, data); err != nil {
		return err
	}
	e.setLoc(makeLoc(idx, off))
	return nil
}

func min8(a uint8, b int) int {
	if int(a) < b {
		return int(a)
	}
	return b
}

// reserve finds space for n bytes in a non-scratch region, invoking the
// GC when nothing is immediately free (spec.md §4.1 "reserve").
func (fsys *Filesystem) reserve(n uint32) (int, uint32, error) {
	idx := fsys.regions.reserveIn(n)
	if idx < 0 {
		if err := fsys.gcUntil(n); err != nil {
			return 0, 0, err
		}
		idx = fsys.regions.reserveIn(n)
		if idx < 0 {
			return 0, 0, ErrFull
		}
	}
	r := fsys.regions.regions[idx]
	return idx, r.cur, nil
}
