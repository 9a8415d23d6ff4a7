//go:build fuse

package nffs

// fs_fuse.go bridges a mounted Filesystem to the host kernel via FUSE,
// the optional subsystem the teacher format gated behind inode_fuse.go's
// "fuse" build tag. That file wired squashfs's read-only Inode directly
// into go-fuse's raw protocol; NFFS additionally needs write support, so
// this bridge is built on go-fuse/v2's higher-level node API instead,
// which removes the need to hand-track lookup counts and attr caching
// the raw protocol requires.

import (
	"context"
	"io"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseRoot is the go-fuse node wrapping the filesystem root.
type fuseRoot struct {
	fs.Inode
	fsys *Filesystem
}

// fuseNode is the go-fuse node for any non-root path; path is the
// absolute NFFS path this node resolves to, recomputed from the parent
// chain rather than cached ids, since go-fuse already owns node identity.
type fuseNode struct {
	fs.Inode
	fsys *Filesystem
	path string
}

var (
	_ fs.NodeGetattrer = (*fuseNode)(nil)
	_ fs.NodeLookuper  = (*fuseNode)(nil)
	_ fs.NodeReaddirer = (*fuseNode)(nil)
	_ fs.NodeOpener    = (*fuseNode)(nil)
	_ fs.NodeReader    = (*fuseNode)(nil)
	_ fs.NodeWriter    = (*fuseNode)(nil)
	_ fs.NodeCreater   = (*fuseNode)(nil)
	_ fs.NodeMkdirer   = (*fuseNode)(nil)
	_ fs.NodeUnlinker  = (*fuseNode)(nil)
	_ fs.NodeRenamer   = (*fuseNode)(nil)

	_ fs.NodeLookuper  = (*fuseRoot)(nil)
	_ fs.NodeReaddirer = (*fuseRoot)(nil)
	_ fs.NodeMkdirer   = (*fuseRoot)(nil)
	_ fs.NodeCreater   = (*fuseRoot)(nil)
	_ fs.NodeUnlinker  = (*fuseRoot)(nil)
	_ fs.NodeRenamer   = (*fuseRoot)(nil)
)

// MountFUSE mounts fsys at mountpoint, blocking callers may run on their
// own goroutine; call the returned server's Unmount to stop it.
func MountFUSE(fsys *Filesystem, mountpoint string) (*fuse.Server, error) {
	root := &fuseRoot{fsys: fsys}
	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{FsName: "nffs"},
	})
	if err != nil {
		return nil, err
	}
	return server, nil
}

func attrFor(fsys *Filesystem, p string, out *fuse.Attr) syscall.Errno {
	st, err := fsys.Stat(p)
	if err != nil {
		return errToErrno(err)
	}
	if st.IsDir {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		out.Mode = syscall.S_IFREG | 0644
		fsys.mu.Lock()
		if e := fsys.lookupInode(st.ID); e != nil {
			out.Size = uint64(fsys.fileSize(e))
		}
		fsys.mu.Unlock()
	}
	out.Ino = uint64(st.ID)
	return 0
}

func errToErrno(err error) syscall.Errno {
	switch err {
	case ErrNotExist:
		return syscall.ENOENT
	case ErrExist:
		return syscall.EEXIST
	case ErrNotDir:
		return syscall.ENOTDIR
	case ErrIsDir:
		return syscall.EISDIR
	case ErrNotEmpty:
		return syscall.ENOTEMPTY
	case ErrNoMem:
		return syscall.ENOMEM
	case ErrFull:
		return syscall.ENOSPC
	default:
		return syscall.EIO
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (r *fuseRoot) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return attrFor(r.fsys, "/", &out.Attr)
}

func (r *fuseRoot) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return lookupChild(&r.Inode, r.fsys, "/", name, out)
}

func (r *fuseRoot) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return readdirAt(r.fsys, "/")
}

func (r *fuseRoot) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return mkdirAt(&r.Inode, r.fsys, "/", name, out)
}

func (r *fuseRoot) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return createAt(&r.Inode, r.fsys, "/", name, out)
}

func (r *fuseRoot) Unlink(ctx context.Context, name string) syscall.Errno {
	return unlinkAt(r.fsys, "/", name)
}

func (r *fuseRoot) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return renameAt(r.fsys, "/", name, "/", newName)
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return attrFor(n.fsys, n.path, &out.Attr)
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return lookupChild(&n.Inode, n.fsys, n.path, name, out)
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return readdirAt(n.fsys, n.path)
}

func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return mkdirAt(&n.Inode, n.fsys, n.path, name, out)
}

func (n *fuseNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return createAt(&n.Inode, n.fsys, n.path, name, out)
}

func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return unlinkAt(n.fsys, n.path, name)
}

func (n *fuseNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return renameAt(n.fsys, n.path, name, n.path, newName)
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	openFlags := O_READ
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		openFlags |= O_WRITE
	}
	h, err := n.fsys.Open(n.path, openFlags)
	if err != nil {
		return nil, 0, errToErrno(err)
	}
	return &fuseFileHandle{h: h}, 0, 0
}

func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fh, ok := f.(*fuseFileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	if err := fh.h.Seek(off); err != nil {
		return nil, errToErrno(err)
	}
	n2, err := fh.h.Read(dest)
	if err != nil && err != io.EOF {
		return nil, errToErrno(err)
	}
	return fuse.ReadResultData(dest[:n2]), 0
}

func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	fh, ok := f.(*fuseFileHandle)
	if !ok {
		return 0, syscall.EBADF
	}
	if err := fh.h.Seek(off); err != nil {
		return 0, errToErrno(err)
	}
	wn, err := fh.h.Write(data)
	if err != nil {
		return 0, errToErrno(err)
	}
	return uint32(wn), 0
}

type fuseFileHandle struct {
	h *FileHandle
}

var _ fs.FileReleaser = (*fuseFileHandle)(nil)

func (h *fuseFileHandle) Release(ctx context.Context) syscall.Errno {
	h.h.Close()
	return 0
}

func lookupChild(parent *fs.Inode, fsys *Filesystem, parentPath, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := joinPath(parentPath, name)
	st, err := fsys.Stat(p)
	if err != nil {
		return nil, errToErrno(err)
	}
	if errno := attrFor(fsys, p, &out.Attr); errno != 0 {
		return nil, errno
	}
	child := newFuseChild(fsys, p, st.IsDir)
	mode := uint32(syscall.S_IFREG)
	if st.IsDir {
		mode = syscall.S_IFDIR
	}
	return parent.NewInode(nil, child, fs.StableAttr{Mode: mode, Ino: uint64(st.ID)}), 0
}

func newFuseChild(fsys *Filesystem, p string, isDir bool) fs.InodeEmbedder {
	_ = isDir
	return &fuseNode{fsys: fsys, path: p}
}

type direntStream struct {
	d     *DirHandle
	next  *fuse.DirEntry
	index uint64
}

func readdirAt(fsys *Filesystem, p string) (fs.DirStream, syscall.Errno) {
	d, err := fsys.OpenDir(p)
	if err != nil {
		return nil, errToErrno(err)
	}
	return &direntStream{d: d}, 0
}

func (s *direntStream) HasNext() bool {
	if s.next != nil {
		return true
	}
	e, err := s.d.Next()
	if err != nil {
		return false
	}
	mode := uint32(syscall.S_IFREG)
	if e.IsDir {
		mode = syscall.S_IFDIR
	}
	s.index++
	s.next = &fuse.DirEntry{Name: e.Name, Ino: uint64(e.ID), Mode: mode, Off: s.index}
	return true
}

func (s *direntStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := *s.next
	s.next = nil
	return e, 0
}

func (s *direntStream) Close() {
	s.d.Close()
}

func mkdirAt(parent *fs.Inode, fsys *Filesystem, parentPath, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := joinPath(parentPath, name)
	if err := fsys.Mkdir(p); err != nil {
		return nil, errToErrno(err)
	}
	if errno := attrFor(fsys, p, &out.Attr); errno != 0 {
		return nil, errno
	}
	child := newFuseChild(fsys, p, true)
	return parent.NewInode(nil, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: out.Attr.Ino}), 0
}

func createAt(parent *fs.Inode, fsys *Filesystem, parentPath, name string, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	p := joinPath(parentPath, name)
	h, err := fsys.Open(p, O_READ|O_WRITE|O_CREATE)
	if err != nil {
		return nil, nil, 0, errToErrno(err)
	}
	if errno := attrFor(fsys, p, &out.Attr); errno != 0 {
		return nil, nil, 0, errno
	}
	child := newFuseChild(fsys, p, false)
	inode := parent.NewInode(nil, child, fs.StableAttr{Mode: syscall.S_IFREG, Ino: out.Attr.Ino})
	return inode, &fuseFileHandle{h: h}, 0, 0
}

func unlinkAt(fsys *Filesystem, parentPath, name string) syscall.Errno {
	if err := fsys.Unlink(joinPath(parentPath, name)); err != nil {
		return errToErrno(err)
	}
	return 0
}

func renameAt(fsys *Filesystem, oldParent, oldName, newParent, newName string) syscall.Errno {
	if err := fsys.Rename(joinPath(oldParent, oldName), joinPath(newParent, newName)); err != nil {
		return errToErrno(err)
	}
	return 0
}
