package nffs

// writer.go implements the append/write engine of spec.md §4.7: creating
// inodes, splitting file writes into <=maxBlockData chunks, and
// maintaining the reverse block chain as each chunk lands.

// createInode allocates a fresh id, writes its first on-flash record, and
// links it into parent's child list and the hash/id indexes.
func (fsys *Filesystem) createInode(parent *inodeEntry, name string, isDir bool) (*inodeEntry, error) {
	if err := fsys.pools.inodes.get(); err != nil {
		return nil, err
	}

	var id uint32
	var err error
	if isDir {
		id, err = fsys.ids.dirID()
	} else {
		id, err = fsys.ids.fileID()
	}
	if err != nil {
		fsys.pools.inodes.put()
		return nil, err
	}

	e := newInodeEntry(id, locNone, parent.id(), []byte(name), isDir)
	if err := fsys.writeInodeRecord(e, []byte(name)); err != nil {
		fsys.pools.inodes.put()
		return nil, err
	}
	if err := dirInsert(fsys, parent, e, []byte(name)); err != nil {
		fsys.pools.inodes.put()
		return nil, err
	}
	fsys.insertInode(e)
	e.incref() // the parent->child link in parent's child list
	return e, nil
}

// appendData splits buf into <=maxBlockData chunks and appends each as a
// new block record, updating file's reverse chain as it goes (spec.md
// §4.7 steps 1-4).
func (fsys *Filesystem) appendData(file *inodeEntry, buf []byte) error {
	max := fsys.maxBlockData
	if max <= 0 {
		return ErrUnexpected
	}
	for len(buf) > 0 {
		n := len(buf)
		if n > max {
			n = max
		}
		chunk := buf[:n]
		buf = buf[n:]

		prevID := idNone
		if file.lastBlock != nil {
			prevID = file.lastBlock.asBlock().id()
		}
		be, err := fsys.appendBlockChunk(file, prevID, chunk)
		if err != nil {
			return err
		}
		file.lastBlock = be.he
	}
	return nil
}

// appendBlockChunk writes a single <=maxBlockData chunk as a new block
// record chained onto prevID, without touching file.lastBlock — the
// caller decides whether the new block becomes the chain's tail.
func (fsys *Filesystem) appendBlockChunk(file *inodeEntry, prevID uint32, chunk []byte) (*blockEntry, error) {
	if err := fsys.pools.blocks.get(); err != nil {
		return nil, err
	}
	blockID, err := fsys.ids.blockID()
	if err != nil {
		fsys.pools.blocks.put()
		return nil, err
	}

	need := uint32(blockRecordSize + len(chunk))
	idx, off, err := fsys.reserve(need)
	if err != nil {
		fsys.pools.blocks.put()
		return nil, err
	}
	rec := &blockRecord{Magic: magicBlock, ID: blockID, Seq: 0, InodeID: file.id(), PrevID: prevID}
	data := rec.marshal(chunk)
	if _, err := fsys.regions.append(idx, data); err != nil {
		fsys.pools.blocks.put()
		return nil, err
	}

	be := newBlockEntry(blockID, makeLoc(idx, off), file.id(), prevID, 0, uint16(len(chunk)))
	fsys.hash.insert(be.he)
	return be, nil
}

// fileSize walks the reverse block chain once to sum every live block's
// data length (spec.md §4.5 "computing the total file size").
func (fsys *Filesystem) fileSize(file *inodeEntry) uint32 {
	var total uint32
	for cur := file.lastBlock; cur != nil; {
		b := cur.asBlock()
		total += uint32(b.dataLen)
		cur = fsys.hash.find(b.prevID)
	}
	return total
}

// truncateChain drops every block entry from RAM whose file offset is >=
// newSize, used by truncating writes/opens (spec.md §4.7's write path and
// §4.4's unlink). If newSize falls strictly inside a block, that block is
// replaced by a freshly written, shortened copy holding only its
// [start, newSize) bytes — otherwise the bytes beyond newSize within that
// block would linger past the new end of file, corrupting any subsequent
// append at a non-block-aligned offset. Dropped blocks' on-flash storage
// is reclaimed at the next GC pass since removing them from the hash
// index makes them garbage.
func (fsys *Filesystem) truncateChain(file *inodeEntry, newSize uint32) error {
	size := fsys.fileSize(file)
	var keep *hashEntry
	cur := file.lastBlock
	for cur != nil {
		b := cur.asBlock()
		start := size - uint32(b.dataLen)
		prevID := b.prevID

		if start >= newSize {
			fsys.hash.remove(cur)
			fsys.pools.blocks.put()
			size = start
			cur = fsys.hash.find(prevID)
			continue
		}

		if start+uint32(b.dataLen) <= newSize {
			keep = cur
			break
		}

		full, err := fsys.readBlockData(b)
		if err != nil {
			return err
		}
		fsys.hash.remove(cur)
		fsys.pools.blocks.put()
		trimmed, err := fsys.appendBlockChunk(file, prevID, full[:newSize-start])
		if err != nil {
			return err
		}
		keep = trimmed.he
		break
	}
	file.lastBlock = keep
	fsys.cache.invalidateFrom(file.id(), newSize)
	return nil
}

// freeFileBlocks drops every block entry belonging to file from RAM
// (spec.md "A file is deleted... its block entries are freed from RAM
// immediately").
func (fsys *Filesystem) freeFileBlocks(file *inodeEntry) {
	cur := file.lastBlock
	for cur != nil {
		b := cur.asBlock()
		next := fsys.hash.find(b.prevID)
		fsys.hash.remove(cur)
		fsys.pools.blocks.put()
		cur = next
	}
	file.lastBlock = nil
	fsys.cache.dropInode(file.id())
}
