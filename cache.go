package nffs

// cacheBlockEntry is one decoded block held in RAM, double-linked two
// ways: offPrev/offNext keep it ordered by file offset within its owning
// cache inode (so seek can binary-walk... in practice linear-walk... the
// range it covers); lruPrev/lruNext keep it in the pool-wide LRU used for
// eviction (spec.md §4.5).
type cacheBlockEntry struct {
	owner      *cacheInodeEntry
	blk        *blockEntry
	fileOffset uint32
	data       []byte

	offPrev, offNext *cacheBlockEntry
	lruPrev, lruNext *cacheBlockEntry
}

// cacheInodeEntry is a cached file: its total byte length plus the
// offset-ordered list of blocks currently held in RAM for it.
type cacheInodeEntry struct {
	inode    *inodeEntry
	fileSize uint32

	blocksHead, blocksTail *cacheBlockEntry

	lruPrev, lruNext *cacheInodeEntry
}

// blockCache is the size-bounded per-inode block/inode cache described in
// spec.md §4.5: two fixed-capacity LRU pools, one for cache-inode
// descriptors and one for cache-block descriptors.
type blockCache struct {
	pools *poolSet

	byInode map[uint32]*cacheInodeEntry

	inodeLRUHead, inodeLRUTail *cacheInodeEntry
	blockLRUHead, blockLRUTail *cacheBlockEntry
}

func newBlockCache(pools *poolSet) *blockCache {
	return &blockCache{pools: pools, byInode: make(map[uint32]*cacheInodeEntry)}
}

func (c *blockCache) touchInode(ci *cacheInodeEntry) {
	c.unlinkInodeLRU(ci)
	ci.lruNext = c.inodeLRUHead
	if c.inodeLRUHead != nil {
		c.inodeLRUHead.lruPrev = ci
	}
	c.inodeLRUHead = ci
	if c.inodeLRUTail == nil {
		c.inodeLRUTail = ci
	}
}

func (c *blockCache) unlinkInodeLRU(ci *cacheInodeEntry) {
	if ci.lruPrev != nil {
		ci.lruPrev.lruNext = ci.lruNext
	} else if c.inodeLRUHead == ci {
		c.inodeLRUHead = ci.lruNext
	}
	if ci.lruNext != nil {
		ci.lruNext.lruPrev = ci.lruPrev
	} else if c.inodeLRUTail == ci {
		c.inodeLRUTail = ci.lruPrev
	}
	ci.lruPrev, ci.lruNext = nil, nil
}

func (c *blockCache) evictOneInode() {
	victim := c.inodeLRUTail
	if victim == nil {
		return
	}
	c.dropInode(victim.inode.id())
}

// dropInode discards every cached block for id and its cache-inode
// descriptor, used when a file's blocks are freed (unlink) and on LRU
// eviction; writes and truncation use invalidateFrom instead.
func (c *blockCache) dropInode(id uint32) {
	ci, ok := c.byInode[id]
	if !ok {
		return
	}
	for b := ci.blocksHead; b != nil; {
		next := b.offNext
		c.unlinkBlockLRU(b)
		c.pools.cacheBlock.put()
		b = next
	}
	c.unlinkInodeLRU(ci)
	delete(c.byInode, id)
	c.pools.cacheInode.put()
}

func (c *blockCache) touchBlock(b *cacheBlockEntry) {
	c.unlinkBlockLRU(b)
	b.lruNext = c.blockLRUHead
	if c.blockLRUHead != nil {
		c.blockLRUHead.lruPrev = b
	}
	c.blockLRUHead = b
	if c.blockLRUTail == nil {
		c.blockLRUTail = b
	}
}

func (c *blockCache) unlinkBlockLRU(b *cacheBlockEntry) {
	if b.lruPrev != nil {
		b.lruPrev.lruNext = b.lruNext
	} else if c.blockLRUHead == b {
		c.blockLRUHead = b.lruNext
	}
	if b.lruNext != nil {
		b.lruNext.lruPrev = b.lruPrev
	} else if c.blockLRUTail == b {
		c.blockLRUTail = b.lruPrev
	}
	b.lruPrev, b.lruNext = nil, nil
}

func (c *blockCache) evictOneBlock() {
	victim := c.blockLRUTail
	if victim == nil {
		return
	}
	c.removeBlock(victim)
}

func (c *blockCache) removeBlock(b *cacheBlockEntry) {
	ci := b.owner
	if b.offPrev != nil {
		b.offPrev.offNext = b.offNext
	} else if ci.blocksHead == b {
		ci.blocksHead = b.offNext
	}
	if b.offNext != nil {
		b.offNext.offPrev = b.offPrev
	} else if ci.blocksTail == b {
		ci.blocksTail = b.offPrev
	}
	c.unlinkBlockLRU(b)
	c.pools.cacheBlock.put()
}

// insertBlockOrdered splices b into ci's offset-ordered list; callers
// guarantee b's range does not already exist in the list.
func insertBlockOrdered(ci *cacheInodeEntry, b *cacheBlockEntry) {
	var prev *cacheBlockEntry
	cur := ci.blocksHead
	for cur != nil && cur.fileOffset < b.fileOffset {
		prev = cur
		cur = cur.offNext
	}
	b.offPrev, b.offNext = prev, cur
	if prev != nil {
		prev.offNext = b
	} else {
		ci.blocksHead = b
	}
	if cur != nil {
		cur.offPrev = b
	} else {
		ci.blocksTail = b
	}
}

// invalidateFrom drops every cached block whose range overlaps or starts
// at-or-after fromOffset, used by the writer when a write/truncate
// changes a file's tail (spec.md §4.5).
func (c *blockCache) invalidateFrom(id uint32, fromOffset uint32) {
	ci, ok := c.byInode[id]
	if !ok {
		return
	}
	for b := ci.blocksHead; b != nil; {
		next := b.offNext
		if b.fileOffset+uint32(len(b.data)) > fromOffset {
			c.removeBlock(b)
		}
		b = next
	}
	if fromOffset < ci.fileSize {
		ci.fileSize = fromOffset
	}
}
