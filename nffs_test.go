package nffs_test

import (
	"bytes"
	"testing"

	"github.com/nffsproj/nffs"
)

func newTestFS(t *testing.T, areaSize int64, numAreas int, opts ...nffs.Option) (*nffs.Filesystem, *nffs.MemDevice, []nffs.AreaDesc) {
	t.Helper()
	size := int(areaSize) * numAreas
	dev := nffs.NewMemDevice(size, areaSize)
	var areas []nffs.AreaDesc
	for i := 0; i < numAreas; i++ {
		areas = append(areas, nffs.AreaDesc{Offset: int64(i) * areaSize, Length: areaSize})
	}
	fsys := nffs.New(dev, opts...)
	if err := fsys.Format(areas); err != nil {
		t.Fatalf("Format failed: %s", err)
	}
	return fsys, dev, areas
}

func writeFile(t *testing.T, fsys *nffs.Filesystem, path string, data []byte) {
	t.Helper()
	h, err := fsys.Open(path, nffs.O_WRITE|nffs.O_CREATE)
	if err != nil {
		t.Fatalf("Open(%s) for write failed: %s", path, err)
	}
	if _, err := h.Write(data); err != nil {
		t.Fatalf("Write(%s) failed: %s", path, err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close(%s) failed: %s", path, err)
	}
}

func readFile(t *testing.T, fsys *nffs.Filesystem, path string) []byte {
	t.Helper()
	h, err := fsys.Open(path, nffs.O_READ)
	if err != nil {
		t.Fatalf("Open(%s) for read failed: %s", path, err)
	}
	defer h.Close()
	var out bytes.Buffer
	buf := make([]byte, 16)
	for {
		n, err := h.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return out.Bytes()
}

func TestCreateAndReadBack(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	want := []byte("hello, nffs")
	writeFile(t, fsys, "/greeting.txt", want)

	got := readFile(t, fsys, "/greeting.txt")
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %q, want %q", got, want)
	}
}

func TestLargeFileSpansManyBlocks(t *testing.T) {
	fsys, _, _ := newTestFS(t, 32*1024, 2)

	want := make([]byte, 5000)
	for i := range want {
		want[i] = byte(i % 251)
	}
	writeFile(t, fsys, "/big.bin", want)

	got := readFile(t, fsys, "/big.bin")
	if !bytes.Equal(got, want) {
		t.Fatalf("large file mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestMkdirAndNestedFile(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	if err := fsys.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir failed: %s", err)
	}
	writeFile(t, fsys, "/sub/leaf.txt", []byte("nested"))

	d, err := fsys.OpenDir("/sub")
	if err != nil {
		t.Fatalf("OpenDir failed: %s", err)
	}
	defer d.Close()
	e, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %s", err)
	}
	if e.Name != "leaf.txt" || e.IsDir {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRenameAcrossDirectories(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	if err := fsys.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir /a failed: %s", err)
	}
	if err := fsys.Mkdir("/b"); err != nil {
		t.Fatalf("Mkdir /b failed: %s", err)
	}
	writeFile(t, fsys, "/a/file.txt", []byte("moveme"))

	if err := fsys.Rename("/a/file.txt", "/b/file.txt"); err != nil {
		t.Fatalf("Rename failed: %s", err)
	}

	if _, err := fsys.Stat("/a/file.txt"); err != nffs.ErrNotExist {
		t.Fatalf("expected source gone, got %v", err)
	}
	got := readFile(t, fsys, "/b/file.txt")
	if string(got) != "moveme" {
		t.Fatalf("got %q after rename", got)
	}
}

func TestOverwriteChurnForcesGC(t *testing.T) {
	fsys, _, _ := newTestFS(t, 4*1024, 2, nffs.WithPoolSizes(nffs.PoolConfig{
		Inodes: 64, Blocks: 64, CacheInodes: 4, CacheBlocks: 8, DirHandles: 4, FileHandles: 4,
	}))

	payload := bytes.Repeat([]byte("x"), 64)
	for i := 0; i < 100; i++ {
		h, err := fsys.Open("/churn.bin", nffs.O_WRITE|nffs.O_CREATE)
		if err != nil {
			t.Fatalf("iteration %d: open failed: %s", i, err)
		}
		if _, err := h.Write(payload); err != nil {
			t.Fatalf("iteration %d: write failed: %s", i, err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("iteration %d: close failed: %s", i, err)
		}
	}

	got := readFile(t, fsys, "/churn.bin")
	if !bytes.Equal(got, payload) {
		t.Fatalf("final content mismatch after repeated overwrite+gc churn")
	}
}

func TestMountRestoresTree(t *testing.T) {
	fsys, dev, areas := newTestFS(t, 16*1024, 2)

	writeFile(t, fsys, "/keep.txt", []byte("durable"))
	if err := fsys.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir failed: %s", err)
	}
	writeFile(t, fsys, "/dir/child.txt", []byte("nested-durable"))

	fsys2 := nffs.New(dev)
	if err := fsys2.Mount(areas); err != nil {
		t.Fatalf("Mount failed: %s", err)
	}

	if got := readFile(t, fsys2, "/keep.txt"); string(got) != "durable" {
		t.Fatalf("got %q after remount", got)
	}
	if got := readFile(t, fsys2, "/dir/child.txt"); string(got) != "nested-durable" {
		t.Fatalf("got %q after remount", got)
	}
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	if _, err := fsys.Open("/nope.txt", nffs.O_READ); err != nffs.ErrNotExist {
		t.Fatalf("got %v, want ErrNotExist", err)
	}
}

func TestMkdirOnExistingPathFails(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	if err := fsys.Mkdir("/dup"); err != nil {
		t.Fatalf("Mkdir failed: %s", err)
	}
	if err := fsys.Mkdir("/dup"); err != nffs.ErrExist {
		t.Fatalf("got %v, want ErrExist", err)
	}
}

func TestWriteAtNonAlignedOffsetReplacesTail(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	writeFile(t, fsys, "/c.txt", []byte("abcdefgh"))

	h, err := fsys.Open("/c.txt", nffs.O_WRITE)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	if err := h.Seek(3); err != nil {
		t.Fatalf("Seek failed: %s", err)
	}
	if _, err := h.Write([]byte("XY")); err != nil {
		t.Fatalf("Write failed: %s", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %s", err)
	}

	got := readFile(t, fsys, "/c.txt")
	if string(got) != "abcXY" {
		t.Fatalf("got %q, want %q", got, "abcXY")
	}
}

func TestMountAfterOverwriteKeepsLatestData(t *testing.T) {
	fsys, dev, areas := newTestFS(t, 16*1024, 2)

	writeFile(t, fsys, "/c.txt", []byte("old"))
	writeFile(t, fsys, "/c.txt", []byte("new"))

	fsys2 := nffs.New(dev)
	if err := fsys2.Mount(areas); err != nil {
		t.Fatalf("Mount failed: %s", err)
	}

	if got := readFile(t, fsys2, "/c.txt"); string(got) != "new" {
		t.Fatalf("got %q after remount, want %q", got, "new")
	}
}

func TestLongFilenameFallsBackToFlashCompare(t *testing.T) {
	fsys, _, _ := newTestFS(t, 16*1024, 2)

	names := []string{
		"a-long-filename-one.txt",
		"a-long-filename-two.txt",
		"short.txt",
	}
	for _, n := range names {
		writeFile(t, fsys, "/"+n, []byte(n))
	}
	for _, n := range names {
		got := readFile(t, fsys, "/"+n)
		if string(got) != n {
			t.Fatalf("file %q: got %q", n, got)
		}
	}
}
