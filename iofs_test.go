package nffs_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/nffsproj/nffs"
)

func TestIOFSReadDirAndReadFile(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	if err := fsys.Mkdir("/docs"); err != nil {
		t.Fatalf("Mkdir failed: %s", err)
	}
	writeFile(t, fsys, "/docs/readme.txt", []byte("hi"))

	iofs := nffs.AsIOFS(fsys)

	entries, err := fs.ReadDir(iofs, "docs")
	if err != nil {
		t.Fatalf("ReadDir failed: %s", err)
	}
	if len(entries) != 1 || entries[0].Name() != "readme.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	data, err := fs.ReadFile(iofs, "docs/readme.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %s", err)
	}
	if string(data) != "hi" {
		t.Fatalf("got %q", data)
	}

	if _, err := fs.Stat(iofs, "docs/missing.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}

func TestFlashErrorUnwrapsToErrFlash(t *testing.T) {
	dev := &failingDevice{}
	fsys := nffs.New(dev)
	err := fsys.Format([]nffs.AreaDesc{{Offset: 0, Length: 4096}, {Offset: 4096, Length: 4096}})
	if err == nil {
		t.Fatal("expected an error from a device that always fails")
	}
	if !errors.Is(err, nffs.ErrFlash) {
		t.Fatalf("got %v, want something matching ErrFlash", err)
	}
}

type failingDevice struct{}

func (failingDevice) ReadFlash(off int64, buf []byte) error  { return errors.New("boom") }
func (failingDevice) WriteFlash(off int64, buf []byte) error { return errors.New("boom") }
func (failingDevice) EraseSector(off int64) error            { return errors.New("boom") }
