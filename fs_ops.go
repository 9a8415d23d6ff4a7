package nffs

import "io"

// Open resolves path and returns a handle for reading and/or writing its
// data, creating the file first if flags includes O_CREATE and it does
// not already exist (spec.md §6 "open").
func (fsys *Filesystem) Open(path string, flags OpenFlag) (*FileHandle, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	res, err := fsys.resolvePath(path, flags.has(O_CREATE))
	if err != nil {
		return nil, err
	}

	file := res.node
	if file == nil {
		if res.parent == nil {
			return nil, ErrNotExist
		}
		file, err = fsys.createInode(res.parent, res.name, false)
		if err != nil {
			return nil, err
		}
	} else if file.isDir {
		return nil, ErrIsDir
	}

	if err := fsys.pools.fileHandles.get(); err != nil {
		return nil, err
	}
	file.incref()

	h := &FileHandle{fsys: fsys, inode: file, flags: flags}
	if flags.has(O_TRUNC) {
		if err := fsys.truncateChain(file, 0); err != nil {
			fsys.pools.fileHandles.put()
			if file.decref() {
				fsys.freeFileBlocks(file)
				fsys.hash.remove(file.he)
				delete(fsys.byID, file.id())
				fsys.pools.inodes.put()
			}
			return nil, err
		}
	}
	if flags.has(O_APPEND) {
		h.offset = fsys.fileSize(file)
	}
	return h, nil
}

// Read fills buf from the handle's current offset, advancing it, per
// spec.md §4.5's cached reverse-chain walk.
func (h *FileHandle) Read(buf []byte) (int, error) {
	h.fsys.mu.Lock()
	defer h.fsys.mu.Unlock()

	if h.closed {
		return 0, ErrUnexpected
	}
	if !h.flags.has(O_READ) {
		return 0, ErrUnexpected
	}

	ci, err := h.fsys.ensureCacheInode(h.inode)
	if err != nil {
		return 0, err
	}
	if h.offset >= ci.fileSize {
		return 0, io.EOF
	}

	n := 0
	for n < len(buf) && h.offset < ci.fileSize {
		cb, err := h.fsys.seekCache(ci, h.offset)
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		off := h.offset - cb.fileOffset
		c := copy(buf[n:], cb.data[off:])
		n += c
		h.offset += uint32(c)
	}
	return n, nil
}

// Write appends buf at the handle's current offset. Writing at an offset
// short of the file's current length truncates the tail first — NFFS's
// append-only block chain has no notion of an in-place partial rewrite
// (spec.md §4.7).
func (h *FileHandle) Write(buf []byte) (int, error) {
	h.fsys.mu.Lock()
	defer h.fsys.mu.Unlock()

	if h.closed {
		return 0, ErrUnexpected
	}
	if !h.flags.has(O_WRITE) {
		return 0, ErrUnexpected
	}
	if h.flags.has(O_APPEND) {
		h.offset = h.fsys.fileSize(h.inode)
	}

	if err := h.fsys.truncateChain(h.inode, h.offset); err != nil {
		return 0, err
	}
	if err := h.fsys.appendData(h.inode, buf); err != nil {
		return 0, err
	}
	h.offset += uint32(len(buf))
	return len(buf), nil
}

// Seek repositions the handle's cursor to an absolute byte offset, which
// must not exceed the file's current size.
func (h *FileHandle) Seek(off int64) error {
	h.fsys.mu.Lock()
	defer h.fsys.mu.Unlock()

	if h.closed {
		return ErrUnexpected
	}
	size := h.fsys.fileSize(h.inode)
	if off < 0 || off > int64(size) {
		return ErrRange
	}
	h.offset = uint32(off)
	return nil
}

// Close releases the handle's pool slot and drops the inode's reference,
// freeing it from RAM if it was also unlinked while open.
func (h *FileHandle) Close() error {
	h.fsys.mu.Lock()
	defer h.fsys.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.fsys.pools.fileHandles.put()
	if h.inode.decref() {
		h.fsys.freeFileBlocks(h.inode)
		h.fsys.hash.remove(h.inode.he)
		delete(h.fsys.byID, h.inode.id())
		h.fsys.pools.inodes.put()
	}
	return nil
}

// Mkdir creates an empty directory at path. The parent must already
// exist and path itself must not.
func (fsys *Filesystem) Mkdir(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	res, err := fsys.resolvePath(path, true)
	if err != nil {
		return err
	}
	if res.node != nil {
		return ErrExist
	}
	if res.parent == nil {
		return ErrNotExist
	}
	_, err = fsys.createInode(res.parent, res.name, true)
	return err
}

// Unlink removes path. A directory is removed recursively: its own
// tombstone record is written immediately, and every descendant's
// in-RAM refcount is dropped via the unlink worklist (spec.md §3, §4.3).
func (fsys *Filesystem) Unlink(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	res, err := fsys.resolvePath(path, false)
	if err != nil {
		return err
	}
	if res.node == nil {
		return ErrNotExist
	}
	if res.node == fsys.root {
		return ErrUnexpected
	}
	return fsys.unlinkInode(res.parent, res.node)
}

func (fsys *Filesystem) unlinkInode(parent, node *inodeEntry) error {
	node.seq++
	node.parentID = idNone
	if err := fsys.writeInodeRecord(node, nil); err != nil {
		node.seq--
		node.parentID = parent.id()
		return err
	}
	dirRemove(parent, node)

	if node.isDir {
		return fsys.queueRecursiveUnlink(node)
	}
	if node.decref() {
		fsys.freeFileBlocks(node)
		fsys.hash.remove(node.he)
		delete(fsys.byID, node.id())
		fsys.pools.inodes.put()
	}
	return nil
}

// queueRecursiveUnlink removes dir and every descendant from the hash
// index, splicing them onto a transient worklist via the hashEntry.next
// field the index no longer needs for them (spec.md §4.3), then
// decrements each one's refcount. An entry still referenced by an open
// handle is re-indexed so it stays reachable by id until closed.
func (fsys *Filesystem) queueRecursiveUnlink(dir *inodeEntry) error {
	var head, tail *hashEntry
	enqueue := func(e *inodeEntry) {
		fsys.hash.remove(e.he)
		if head == nil {
			head = e.he
		} else {
			tail.next = e.he
		}
		tail = e.he
	}

	enqueue(dir)
	for cur := head; cur != nil; cur = cur.next {
		ino := cur.owner.(*inodeEntry)
		for c := ino.children; c != nil; {
			next := c.sibling
			enqueue(c)
			c = next
		}
	}

	for cur := head; cur != nil; {
		next := cur.next
		ino := cur.owner.(*inodeEntry)
		ino.parentID = idNone
		ino.sibling = nil
		freed := ino.decref()
		if ino.isDir {
			ino.children = nil
		} else {
			fsys.freeFileBlocks(ino)
		}
		if freed {
			delete(fsys.byID, ino.id())
			fsys.pools.inodes.put()
		} else {
			cur.next = nil
			fsys.hash.insert(cur)
		}
		cur = next
	}
	return nil
}

// Rename moves or renames the inode at oldPath to newPath. newPath's
// leaf must not already exist, unless it names the same inode as
// oldPath, in which case this is a no-op save for a fresh inode record
// (spec.md §4.6).
func (fsys *Filesystem) Rename(oldPath, newPath string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	oldRes, err := fsys.resolvePath(oldPath, false)
	if err != nil {
		return err
	}
	if oldRes.node == nil {
		return ErrNotExist
	}
	newRes, err := fsys.resolvePath(newPath, true)
	if err != nil {
		return err
	}

	node := oldRes.node
	if newRes.node == node {
		node.seq++
		if err := fsys.writeInodeRecord(node, []byte(newRes.name)); err != nil {
			node.seq--
			return err
		}
		node.setName([]byte(newRes.name))
		return nil
	}
	if newRes.node != nil {
		return ErrExist
	}
	if newRes.parent == nil {
		return ErrNotExist
	}

	oldParent := oldRes.parent
	oldParentID := node.parentID
	node.seq++
	node.parentID = newRes.parent.id()
	if err := fsys.writeInodeRecord(node, []byte(newRes.name)); err != nil {
		node.seq--
		node.parentID = oldParentID
		return err
	}
	dirRemove(oldParent, node)
	return dirInsert(fsys, newRes.parent, node, []byte(newRes.name))
}

// OpenDir opens path for iteration via DirHandle.Next.
func (fsys *Filesystem) OpenDir(path string) (*DirHandle, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	res, err := fsys.resolvePath(path, false)
	if err != nil {
		return nil, err
	}
	if res.node == nil {
		return nil, ErrNotExist
	}
	if !res.node.isDir {
		return nil, ErrNotDir
	}
	if err := fsys.pools.dirHandles.get(); err != nil {
		return nil, err
	}
	res.node.incref()
	return &DirHandle{fsys: fsys, dir: res.node}, nil
}

// Next returns the next entry in the directory's sorted child list, or
// io.EOF once exhausted.
func (d *DirHandle) Next() (*DirEntry, error) {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	if d.closed {
		return nil, ErrUnexpected
	}
	if !d.started {
		d.cursor = d.dir.children
		d.started = true
	} else if d.cursor != nil {
		d.cursor = d.cursor.sibling
	}
	if d.cursor == nil {
		return nil, io.EOF
	}
	name, err := d.fsys.entryName(d.cursor)
	if err != nil {
		return nil, err
	}
	return &DirEntry{Name: string(name), ID: d.cursor.id(), IsDir: d.cursor.isDir}, nil
}

// Close releases the handle's pool slot and drops the directory's
// reference.
func (d *DirHandle) Close() error {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.fsys.pools.dirHandles.put()
	if d.dir.id() != idRoot && d.dir.decref() {
		delete(d.fsys.byID, d.dir.id())
		d.fsys.hash.remove(d.dir.he)
		d.fsys.pools.inodes.put()
	}
	return nil
}

// Stat reports the size and kind of the inode at path.
func (fsys *Filesystem) Stat(path string) (*DirEntry, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	res, err := fsys.resolvePath(path, false)
	if err != nil {
		return nil, err
	}
	if res.node == nil {
		return nil, ErrNotExist
	}
	return &DirEntry{Name: res.name, ID: res.node.id(), IsDir: res.node.isDir}, nil
}
