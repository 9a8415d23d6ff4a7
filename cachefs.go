package nffs

// cachefs.go bridges the size-bounded block cache (cache.go) to live
// filesystem state: decoding blocks from flash on a cache miss and
// evicting the pool-wide LRU victim when a pool is exhausted, per
// spec.md §4.5.

// ensureCacheInode returns the cache-inode descriptor for file, creating
// it (evicting the LRU cache-inode if the pool is full) if not already
// resident.
func (fsys *Filesystem) ensureCacheInode(file *inodeEntry) (*cacheInodeEntry, error) {
	if ci, ok := fsys.cache.byInode[file.id()]; ok {
		fsys.cache.touchInode(ci)
		return ci, nil
	}
	if err := fsys.pools.cacheInode.get(); err != nil {
		if fsys.cache.inodeLRUTail == nil {
			return nil, err
		}
		fsys.cache.evictOneInode()
		if err := fsys.pools.cacheInode.get(); err != nil {
			return nil, err
		}
	}
	ci := &cacheInodeEntry{inode: file, fileSize: fsys.fileSize(file)}
	fsys.cache.byInode[file.id()] = ci
	fsys.cache.touchInode(ci)
	return ci, nil
}

// seekCache returns the cache block covering offset, decoding it from
// flash (and evicting the LRU cache-block if the pool is full) on a
// cache miss.
func (fsys *Filesystem) seekCache(ci *cacheInodeEntry, offset uint32) (*cacheBlockEntry, error) {
	for b := ci.blocksHead; b != nil; b = b.offNext {
		if offset >= b.fileOffset && offset < b.fileOffset+uint32(len(b.data)) {
			fsys.cache.touchBlock(b)
			return b, nil
		}
	}

	cum := uint32(0)
	for cur := ci.inode.lastBlock; cur != nil; {
		blk := cur.asBlock()
		start := ci.fileSize - cum - uint32(blk.dataLen)
		end := ci.fileSize - cum
		if offset >= start && offset < end {
			data, err := fsys.readBlockData(blk)
			if err != nil {
				return nil, err
			}
			if err := fsys.pools.cacheBlock.get(); err != nil {
				if fsys.cache.blockLRUTail == nil {
					return nil, err
				}
				fsys.cache.evictOneBlock()
				if err := fsys.pools.cacheBlock.get(); err != nil {
					return nil, err
				}
			}
			cb := &cacheBlockEntry{owner: ci, blk: blk, fileOffset: start, data: data}
			insertBlockOrdered(ci, cb)
			fsys.cache.touchBlock(cb)
			return cb, nil
		}
		cum += uint32(blk.dataLen)
		cur = fsys.hash.find(blk.prevID)
	}
	return nil, ErrRange
}
