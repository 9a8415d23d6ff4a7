package nffs

import (
	"bytes"
	"encoding/binary"
	"sort"
)

const lostFoundName = "lost+found"

// restore rebuilds every in-RAM structure from the areas already loaded
// into fsys.regions by scanning flash from scratch, in the four passes
// spec.md §4.9 describes: region discovery, record scan, linking, repair.
func (fsys *Filesystem) restore() error {
	if err := fsys.restoreDiscoverRegions(); err != nil {
		return err
	}

	inodesByID, blocksByID, err := fsys.restoreScanRecords()
	if err != nil {
		return err
	}

	if err := fsys.restoreLinkTree(inodesByID); err != nil {
		return err
	}

	if err := fsys.restoreRepair(inodesByID); err != nil {
		return err
	}

	fsys.restoreLinkBlocks(blocksByID)

	fsys.log.Printf("nffs: restored %d inodes, %d blocks", len(fsys.byID), len(blocksByID))
	return nil
}

// restoreDiscoverRegions is pass 1: classify every region as VALID or
// SCRATCH by its header, or as the sole BAD region left over from a
// power-cut mid-GC, which is then reformatted as the new scratch.
func (fsys *Filesystem) restoreDiscoverRegions() error {
	regions := fsys.regions.regions
	scratchCount := 0
	badIdx := -1

	for idx, r := range regions {
		hdrBuf := make([]byte, regionHeaderSize)
		if err := fsys.dev.ReadFlash(r.phys.Offset, hdrBuf); err != nil {
			return wrapFlash("read", err)
		}
		var hdr regionHeader
		if err := hdr.unmarshal(hdrBuf); err != nil || !hdr.magicValid() {
			if badIdx >= 0 {
				return ErrCorrupt
			}
			badIdx = idx
			continue
		}
		r.id = hdr.ID
		r.gcSeq = hdr.GCSeq
		r.cur = regionHeaderSize
		if r.isScratch() {
			scratchCount++
		}
	}

	if badIdx >= 0 {
		if scratchCount != 0 {
			return ErrCorrupt
		}
		if err := fsys.regions.eraseRegion(badIdx); err != nil {
			return err
		}
		hdr := newRegionHeader(regions[badIdx].length, 0, areaIDNone)
		if _, err := fsys.regions.append(badIdx, hdr.marshal()); err != nil {
			return err
		}
		regions[badIdx].id = areaIDNone
		regions[badIdx].gcSeq = 0
		scratchCount = 1
	}

	if scratchCount != 1 {
		return ErrCorrupt
	}
	return nil
}

// restoreScanRecords is pass 2: walk every non-scratch region in
// ascending gc_seq order (oldest data first, so a duplicate left behind
// by a crash mid-GC is resolved in favor of the freshly relocated copy)
// validating CRCs and keeping, per id, only the highest-sequence record
// seen — ties go to whichever copy is scanned later.
func (fsys *Filesystem) restoreScanRecords() (map[uint32]*inodeEntry, map[uint32]*blockEntry, error) {
	inodesByID := make(map[uint32]*inodeEntry)
	blocksByID := make(map[uint32]*blockEntry)

	regionOrder := make([]int, 0, len(fsys.regions.regions))
	for idx, r := range fsys.regions.regions {
		if !r.isScratch() {
			regionOrder = append(regionOrder, idx)
		}
	}
	sort.Slice(regionOrder, func(i, j int) bool {
		return fsys.regions.regions[regionOrder[i]].gcSeq < fsys.regions.regions[regionOrder[j]].gcSeq
	})

	for _, idx := range regionOrder {
		r := fsys.regions.regions[idx]
		off := uint32(regionHeaderSize)
		for off+4 <= r.length {
			head, err := fsys.regions.read(makeLoc(idx, off), 4)
			if err != nil {
				break
			}
			magic, _ := peekMagic(head)

			switch magic {
			case magicInode:
				hdrBuf, err := fsys.regions.read(makeLoc(idx, off), inodeRecordSize)
				if err != nil {
					off = r.length
					continue
				}
				var hdr inodeRecord
				if err := binary.Read(bytes.NewReader(hdrBuf), order, &hdr); err != nil {
					off = r.length
					continue
				}
				total := inodeRecordSize + int(hdr.FilenameLen)
				if off+uint32(total) > r.length {
					off = r.length
					continue
				}
				full, err := fsys.regions.read(makeLoc(idx, off), total)
				if err != nil {
					off = r.length
					continue
				}
				rec, name, verr := unmarshalInodeRecord(full)
				if verr != nil {
					// CRC mismatch marks the torn tail of a crash; nothing
					// past this point in the region was fully written.
					off = r.length
					continue
				}
				fsys.applyInodeRecord(rec, name, makeLoc(idx, off), inodesByID)
				off += uint32(total)

			case magicBlock:
				hdrBuf, err := fsys.regions.read(makeLoc(idx, off), blockRecordSize)
				if err != nil {
					off = r.length
					continue
				}
				var hdr blockRecord
				if err := binary.Read(bytes.NewReader(hdrBuf), order, &hdr); err != nil {
					off = r.length
					continue
				}
				total := blockRecordSize + int(hdr.DataLen)
				if off+uint32(total) > r.length {
					off = r.length
					continue
				}
				full, err := fsys.regions.read(makeLoc(idx, off), total)
				if err != nil {
					off = r.length
					continue
				}
				rec, _, verr := unmarshalBlockRecord(full)
				if verr != nil {
					off = r.length
					continue
				}
				fsys.applyBlockRecord(rec, makeLoc(idx, off), blocksByID)
				off += uint32(total)

			default:
				off = r.length
			}
		}
		r.cur = off
	}

	return inodesByID, blocksByID, nil
}

func (fsys *Filesystem) applyInodeRecord(rec *inodeRecord, name []byte, loc flashLoc, byID map[uint32]*inodeEntry) {
	if existing, ok := byID[rec.ID]; ok {
		if rec.Seq < existing.seq {
			return
		}
		existing.parentID = rec.ParentID
		existing.seq = rec.Seq
		existing.setName(name)
		existing.setLoc(loc)
		return
	}
	e := newInodeEntry(rec.ID, loc, rec.ParentID, name, idIsDir(rec.ID))
	e.seq = rec.Seq
	byID[rec.ID] = e
}

func (fsys *Filesystem) applyBlockRecord(rec *blockRecord, loc flashLoc, byID map[uint32]*blockEntry) {
	if existing, ok := byID[rec.ID]; ok {
		if rec.Seq < existing.seq {
			return
		}
		existing.inodeID = rec.InodeID
		existing.prevID = rec.PrevID
		existing.seq = rec.Seq
		existing.dataLen = rec.DataLen
		existing.setLoc(loc)
		return
	}
	byID[rec.ID] = newBlockEntry(rec.ID, loc, rec.InodeID, rec.PrevID, rec.Seq, rec.DataLen)
}

// restoreLinkTree is pass 3's directory half: root must exist and be
// parentless; every other record with a live parent_id (not NONE, i.e.
// not itself a deletion tombstone) is indexed and queued for linking into
// its declared parent's sorted child list. Ids observed on flash bump the
// allocator so newly created objects never collide with restored ones.
func (fsys *Filesystem) restoreLinkTree(inodesByID map[uint32]*inodeEntry) error {
	root, ok := inodesByID[idRoot]
	if !ok || root.parentID != idNone {
		return ErrCorrupt
	}
	fsys.ids.observe(idRoot)
	fsys.insertInode(root)
	fsys.root = root

	var pending []*inodeEntry
	for id, e := range inodesByID {
		if id == idRoot {
			continue
		}
		if e.parentID == idNone {
			continue // deletion tombstone; not part of the live tree
		}
		fsys.ids.observe(id)
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].id() < pending[j].id() })

	for _, e := range pending {
		parent := fsys.lookupInode(e.parentID)
		if parent == nil || !parent.isDir {
			continue // unresolved for now; repair pass handles it
		}
		name, err := fsys.entryName(e)
		if err != nil {
			continue
		}
		fsys.insertInode(e)
		if err := dirInsert(fsys, parent, e, name); err != nil {
			return err
		}
	}
	return nil
}

// restoreRepair is pass 4: validate the scratch region, then reparent
// under /lost+found (created on demand) any inode whose declared parent
// never resolved to a live directory. Root's identity and the presence of
// exactly one scratch region were already validated by discovery and
// linking.
func (fsys *Filesystem) restoreRepair(inodesByID map[uint32]*inodeEntry) error {
	if err := fsys.restoreValidateScratch(); err != nil {
		return err
	}

	var orphans []*inodeEntry
	for id, e := range inodesByID {
		if id == idRoot || e.parentID == idNone {
			continue
		}
		if fsys.lookupInode(id) == nil {
			orphans = append(orphans, e)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].id() < orphans[j].id() })

	lf, err := dirFind(fsys, fsys.root, []byte(lostFoundName))
	if err != nil {
		if err != ErrNotExist {
			return err
		}
		lf, err = fsys.createInode(fsys.root, lostFoundName, true)
		if err != nil {
			return err
		}
	}
	fsys.lostFound = lf

	for _, e := range orphans {
		e.seq++
		e.parentID = lf.id()
		name, nerr := fsys.entryName(e)
		if nerr != nil {
			return nerr
		}
		if werr := fsys.writeInodeRecord(e, name); werr != nil {
			return werr
		}
		fsys.insertInode(e)
		if ierr := dirInsert(fsys, lf, e, name); ierr != nil {
			return ierr
		}
	}
	return nil
}

// restoreValidateScratch enforces spec.md §4.9 Pass 4's scratch check: a
// scratch region must be present and at least as long as every non-scratch
// region, so GC can always copy a victim's live records into it. With
// unequal area sizes a rotated scratch can end up shorter than some live
// region, which must fail mount rather than silently wedge GC later.
func (fsys *Filesystem) restoreValidateScratch() error {
	idx := fsys.regions.scratchIndex()
	if idx < 0 {
		return ErrCorrupt
	}
	scratchLen := fsys.regions.regions[idx].length
	for i, r := range fsys.regions.regions {
		if i == idx {
			continue
		}
		if r.length > scratchLen {
			return ErrCorrupt
		}
	}
	return nil
}

// restoreLinkBlocks is pass 3's file half, run after repair has settled
// every inode's final liveness: for each live file, the block with no
// other live block pointing to it as prev is its tail, and only blocks
// belonging to a live file are kept indexed. Blocks whose owning file
// never resolved are left un-indexed, making them immediately eligible
// for reclamation by the next GC pass.
func (fsys *Filesystem) restoreLinkBlocks(blocksByID map[uint32]*blockEntry) {
	byInode := make(map[uint32][]*blockEntry)
	referenced := make(map[uint32]bool)
	for _, b := range blocksByID {
		file := fsys.lookupInode(b.inodeID)
		if file == nil || file.isDir {
			continue
		}
		byInode[b.inodeID] = append(byInode[b.inodeID], b)
		if b.prevID != idNone {
			referenced[b.prevID] = true
		}
	}

	for inodeID, blocks := range byInode {
		file := fsys.lookupInode(inodeID)
		for _, b := range blocks {
			fsys.hash.insert(b.he)
		}
		// Among the unreferenced candidates, the live tail is the one
		// with the greatest id: ids are allocated monotonically, so a
		// stale chain orphaned by an overwrite (but not yet GC'd) can
		// never carry a higher id than the chain that superseded it.
		var tail *blockEntry
		for _, b := range blocks {
			if referenced[b.id()] {
				continue
			}
			if tail == nil || b.id() > tail.id() {
				tail = b
			}
		}
		if tail != nil {
			file.lastBlock = tail.he
		}
	}
}

func (fsys *Filesystem) entryName(e *inodeEntry) ([]byte, error) {
	if !e.fullNameNeeded() {
		return e.namePrefix[:e.nameLen], nil
	}
	return fsys.readInodeName(e)
}
