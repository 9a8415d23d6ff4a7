package nffs

// Object-id space, partitioned into three disjoint ranges (spec.md §3).
const (
	idDirMin   uint32 = 0
	idDirMax   uint32 = 1 << 28
	idFileMin  uint32 = 1 << 28
	idFileMax  uint32 = 1 << 31
	idBlockMin uint32 = 1 << 31
	idBlockMax uint32 = 0xffffffff

	idRoot uint32 = idDirMin // root directory is always id 0
	idNone uint32 = 0xffffffff
)

func idIsDir(id uint32) bool {
	return id >= idDirMin && id < idDirMax
}

func idIsFile(id uint32) bool {
	return id >= idFileMin && id < idFileMax
}

func idIsBlock(id uint32) bool {
	return id >= idBlockMin && id < idBlockMax
}

// idAllocator hands out monotonically increasing ids, independently for
// each of the three ranges, mirroring the original's three separate
// nffs_hash_next_{dir,file,block}_id counters.
type idAllocator struct {
	nextDir   uint32
	nextFile  uint32
	nextBlock uint32
}

func newIDAllocator() *idAllocator {
	return &idAllocator{
		nextDir:   idDirMin + 1, // 0 is reserved for the root
		nextFile:  idFileMin,
		nextBlock: idBlockMin,
	}
}

func (a *idAllocator) dirID() (uint32, error) {
	if a.nextDir >= idDirMax {
		return 0, ErrFull
	}
	id := a.nextDir
	a.nextDir++
	return id, nil
}

func (a *idAllocator) fileID() (uint32, error) {
	if a.nextFile >= idFileMax {
		return 0, ErrFull
	}
	id := a.nextFile
	a.nextFile++
	return id, nil
}

func (a *idAllocator) blockID() (uint32, error) {
	if a.nextBlock >= idBlockMax {
		return 0, ErrFull
	}
	id := a.nextBlock
	a.nextBlock++
	return id, nil
}

// observe bumps the relevant counter past id, used during restore so that
// newly allocated ids never collide with anything found on flash.
func (a *idAllocator) observe(id uint32) {
	switch {
	case idIsDir(id):
		if id >= a.nextDir {
			a.nextDir = id + 1
		}
	case idIsFile(id):
		if id >= a.nextFile {
			a.nextFile = id + 1
		}
	case idIsBlock(id):
		if id >= a.nextBlock {
			a.nextBlock = id + 1
		}
	}
}
