package nffs

// OpenFlag selects the behavior of Open (spec.md §6).
type OpenFlag uint8

const (
	O_READ OpenFlag = 1 << iota
	O_WRITE
	O_APPEND
	O_TRUNC
	O_CREATE
)

func (f OpenFlag) has(bit OpenFlag) bool { return f&bit != 0 }

// FileHandle is an open reference to a file inode plus a cursor, matching
// spec.md §3's "File handle" entity.
type FileHandle struct {
	fsys   *Filesystem
	inode  *inodeEntry
	offset uint32
	flags  OpenFlag
	closed bool
}

// DirHandle iterates a directory's sorted child list (spec.md §6
// opendir/readdir/closedir).
type DirHandle struct {
	fsys    *Filesystem
	dir     *inodeEntry
	cursor  *inodeEntry
	started bool
	closed  bool
}

// DirEntry describes one entry returned by DirHandle.Next.
type DirEntry struct {
	Name  string
	ID    uint32
	IsDir bool
}
