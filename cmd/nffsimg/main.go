// Command nffsimg inspects and builds NFFS flash images backed by a
// plain host file, the same role sqfs played for squashfs images.
package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/nffsproj/nffs"
)

const usage = `nffsimg - NFFS flash image CLI tool

Usage:
  nffsimg mkfs <image_file> <size> <area_size>   Format a new image of size bytes, split into area_size areas
  nffsimg ls <image_file> [<path>]               List files in the image (optionally in a specific path)
  nffsimg cat <image_file> <file>                Display contents of a file in the image
  nffsimg info <image_file>                      Display information about the image
  nffsimg help                                   Show this help message

Examples:
  nffsimg mkfs flash.img 262144 65536            Create a 256KiB image split into four 64KiB areas
  nffsimg ls flash.img                           List all files at the root of flash.img
  nffsimg cat flash.img dir/file.txt             Display contents of dir/file.txt
  nffsimg info flash.img                         Show the area layout only (no pool usage)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mkfs":
		if len(os.Args) < 5 {
			err = fmt.Errorf("mkfs requires <image_file> <size> <area_size>")
			break
		}
		err = mkfs(os.Args[2], os.Args[3], os.Args[4])
	case "ls":
		if len(os.Args) < 3 {
			err = fmt.Errorf("ls requires <image_file>")
			break
		}
		p := "."
		if len(os.Args) > 3 {
			p = os.Args[3]
		}
		err = listFiles(os.Args[2], p)
	case "cat":
		if len(os.Args) < 4 {
			err = fmt.Errorf("cat requires <image_file> <file>")
			break
		}
		err = catFile(os.Args[2], os.Args[3])
	case "info":
		if len(os.Args) < 3 {
			err = fmt.Errorf("info requires <image_file>")
			break
		}
		err = showInfo(os.Args[2])
	case "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func parseSize(s string) (int64, error) {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func mkfs(path, sizeStr, areaSizeStr string) error {
	size, err := parseSize(sizeStr)
	if err != nil {
		return fmt.Errorf("bad size: %w", err)
	}
	areaSize, err := parseSize(areaSizeStr)
	if err != nil {
		return fmt.Errorf("bad area size: %w", err)
	}
	if areaSize <= 0 || size%areaSize != 0 {
		return fmt.Errorf("size must be a multiple of area_size")
	}

	dev := nffs.NewMemDevice(int(size), areaSize)
	var areas []nffs.AreaDesc
	for off := int64(0); off < size; off += areaSize {
		areas = append(areas, nffs.AreaDesc{Offset: off, Length: areaSize})
	}

	fsys := nffs.New(dev)
	if err := fsys.Format(areas); err != nil {
		return err
	}

	return writeImageFile(path, dev, size)
}

func listFiles(imgPath, dirPath string) error {
	fsys, _, err := openImage(imgPath)
	if err != nil {
		return err
	}
	iofs := nffs.AsIOFS(fsys)

	entries, err := fs.ReadDir(iofs, dirPath)
	if err != nil {
		return fmt.Errorf("failed to read directory %q: %w", dirPath, err)
	}
	for _, entry := range entries {
		kind := "-"
		if entry.IsDir() {
			kind = "d"
		}
		info, err := entry.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		fmt.Printf("%s %8d %s\n", kind, size, entry.Name())
	}
	return nil
}

func catFile(imgPath, filePath string) error {
	fsys, _, err := openImage(imgPath)
	if err != nil {
		return err
	}
	data, err := fs.ReadFile(nffs.AsIOFS(fsys), filePath)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", filePath, err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func showInfo(imgPath string) error {
	fsys, areas, err := openImage(imgPath)
	if err != nil {
		return err
	}
	_ = fsys
	fmt.Println("NFFS Image Information")
	fmt.Println("=======================")
	fmt.Printf("Areas: %d\n", len(areas))
	for i, a := range areas {
		fmt.Printf("  area %d: offset=%d length=%d\n", i, a.Offset, a.Length)
	}
	return nil
}

// openImage loads the whole image file into an in-memory device so
// nffsimg can run without a real flash driver, and mounts it as 4
// equal-sized areas. No layout is read from the image, so an image
// formatted by mkfs with a different area count does not mount here.
func openImage(path string) (*nffs.Filesystem, []nffs.AreaDesc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	const areaCount = 4
	if len(raw)%areaCount != 0 {
		return nil, nil, fmt.Errorf("image size %d is not a multiple of %d areas", len(raw), areaCount)
	}
	areaSize := int64(len(raw)) / areaCount

	dev := nffs.NewMemDevice(len(raw), areaSize)
	for off := 0; off < len(raw); off += int(areaSize) {
		if err := dev.WriteFlash(int64(off), raw[off:off+int(areaSize)]); err != nil {
			return nil, nil, err
		}
	}

	var areas []nffs.AreaDesc
	for off := int64(0); off < int64(len(raw)); off += areaSize {
		areas = append(areas, nffs.AreaDesc{Offset: off, Length: areaSize})
	}

	fsys := nffs.New(dev)
	if err := fsys.Mount(areas); err != nil {
		return nil, nil, fmt.Errorf("mount failed: %w", err)
	}
	return fsys, areas, nil
}

func writeImageFile(path string, dev *nffs.MemDevice, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, size)
	if err := dev.ReadFlash(0, buf); err != nil {
		return err
	}
	_, err = f.Write(buf)
	return err
}
