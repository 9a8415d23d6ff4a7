package nffs

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// iofs.go adapts the filesystem to the standard io/fs interfaces, the
// same convenience the teacher format gave its read-only Inode type
// (file.go's File/FileDir/fileinfo trio) — generalized here to NFFS's
// read/write, directory-and-file-only model (no unix mode bits, since
// nothing in spec.md's data model stores permissions or timestamps).

// IOFS adapts a mounted Filesystem to fs.FS, fs.ReadDirFS and fs.StatFS.
type IOFS struct {
	fsys *Filesystem
}

// AsIOFS wraps fsys for use with any io/fs-consuming API (text/template,
// http.FileServer's fs.FS form, archive/zip-style walkers, and so on).
func AsIOFS(fsys *Filesystem) *IOFS { return &IOFS{fsys: fsys} }

var (
	_ fs.FS         = (*IOFS)(nil)
	_ fs.ReadDirFS  = (*IOFS)(nil)
	_ fs.StatFS     = (*IOFS)(nil)
	_ fs.File       = (*ioFile)(nil)
	_ fs.ReadDirFile = (*ioDir)(nil)
	_ fs.FileInfo   = (*ioFileInfo)(nil)
)

func (i *IOFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	p := "/" + name
	if name == "." {
		p = "/"
	}
	st, err := i.fsys.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	if st.IsDir {
		d, err := i.fsys.OpenDir(p)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
		}
		return &ioDir{d: d, name: name, id: st.ID}, nil
	}
	h, err := i.fsys.Open(p, O_READ)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	return &ioFile{h: h, name: name, id: st.ID}, nil
}

func (i *IOFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	p := "/" + name
	if name == "." {
		p = "/"
	}
	st, err := i.fsys.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: toFSErr(err)}
	}
	return &ioFileInfo{fsys: i.fsys, name: path.Base(name), id: st.ID, isDir: st.IsDir}, nil
}

func (i *IOFS) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := i.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return d.ReadDir(-1)
}

func toFSErr(err error) error {
	switch err {
	case ErrNotExist:
		return fs.ErrNotExist
	case ErrExist:
		return fs.ErrExist
	default:
		return err
	}
}

// ioFile adapts a *FileHandle to fs.File and io.Seeker.
type ioFile struct {
	h    *FileHandle
	name string
	id   uint32
}

func (f *ioFile) Read(p []byte) (int, error) { return f.h.Read(p) }
func (f *ioFile) Close() error                { return f.h.Close() }

func (f *ioFile) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, fs.ErrInvalid
	}
	if err := f.h.Seek(offset); err != nil {
		return 0, err
	}
	return offset, nil
}

func (f *ioFile) Stat() (fs.FileInfo, error) {
	return &ioFileInfo{fsys: f.h.fsys, name: path.Base(f.name), id: f.id, isDir: false}, nil
}

// ioDir adapts a *DirHandle to fs.ReadDirFile.
type ioDir struct {
	d    *DirHandle
	name string
	id   uint32
}

func (d *ioDir) Read(p []byte) (int, error) { return 0, fs.ErrInvalid }
func (d *ioDir) Close() error                { return d.d.Close() }

func (d *ioDir) Stat() (fs.FileInfo, error) {
	return &ioFileInfo{fsys: d.d.fsys, name: path.Base(d.name), id: d.id, isDir: true}, nil
}

func (d *ioDir) ReadDir(n int) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for n <= 0 || len(out) < n {
		e, err := d.d.Next()
		if err == io.EOF {
			if n <= 0 {
				return out, nil
			}
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, &ioFileInfo{fsys: d.d.fsys, name: e.Name, id: e.ID, isDir: e.IsDir})
	}
	return out, nil
}

// ioFileInfo adapts a DirEntry to fs.FileInfo and fs.DirEntry.
type ioFileInfo struct {
	fsys  *Filesystem
	name  string
	id    uint32
	isDir bool
}

func (fi *ioFileInfo) Name() string { return fi.name }
func (fi *ioFileInfo) IsDir() bool  { return fi.isDir }
func (fi *ioFileInfo) Sys() any     { return fi.id }

func (fi *ioFileInfo) Size() int64 {
	if fi.isDir {
		return 0
	}
	fi.fsys.mu.Lock()
	defer fi.fsys.mu.Unlock()
	e := fi.fsys.lookupInode(fi.id)
	if e == nil {
		return 0
	}
	return int64(fi.fsys.fileSize(e))
}

func (fi *ioFileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}

// ModTime is not modeled by this filesystem's data model (spec.md's
// inode record carries no timestamp); it always reports the zero time.
func (fi *ioFileInfo) ModTime() time.Time { return time.Time{} }

func (fi *ioFileInfo) Type() fs.FileMode { return fi.Mode().Type() }

func (fi *ioFileInfo) Info() (fs.FileInfo, error) { return fi, nil }
