package nffs

// pool is a fixed-capacity counted allocator, standing in for the
// original's os_mempool-backed pools (spec.md §5; supplemented from
// nffs_priv.h's nffs_{inode_entry,block_entry,cache_inode,cache_block,
// dir,file}_pool). NFFS does not actually need typed storage recycling
// in Go — the garbage collector reclaims freed Go values — but it does
// need the exhaustion behavior: allocation beyond the configured capacity
// must fail with ErrNoMem rather than growing without bound, since a
// real embedded target has none to grow into.
type pool struct {
	cap   int
	inUse int
}

func newPool(capacity int) *pool {
	return &pool{cap: capacity}
}

func (p *pool) get() error {
	if p.cap > 0 && p.inUse >= p.cap {
		return ErrNoMem
	}
	p.inUse++
	return nil
}

func (p *pool) put() {
	if p.inUse > 0 {
		p.inUse--
	}
}

func (p *pool) used() int { return p.inUse }
func (p *pool) capacity() int { return p.cap }

// poolSet mirrors the original's inventory of pools: one each for inode
// entries, block entries, cache-inodes, cache-blocks, directory handles
// and file handles.
type poolSet struct {
	inodes     *pool
	blocks     *pool
	cacheInode *pool
	cacheBlock *pool
	dirHandles *pool
	fileHandles *pool
}

func newPoolSet(c PoolConfig) *poolSet {
	return &poolSet{
		inodes:      newPool(c.Inodes),
		blocks:      newPool(c.Blocks),
		cacheInode:  newPool(c.CacheInodes),
		cacheBlock:  newPool(c.CacheBlocks),
		dirHandles:  newPool(c.DirHandles),
		fileHandles: newPool(c.FileHandles),
	}
}
