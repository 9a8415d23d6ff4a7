package nffs

import "fmt"

// flashLoc packs a region index (high byte) and a byte offset within that
// region (low 24 bits), as spec.md §3 describes for hash-entry flash
// locations.
type flashLoc uint32

const locNone flashLoc = 0xffffffff

func makeLoc(regionIdx int, offset uint32) flashLoc {
	return flashLoc(uint32(byte(regionIdx))<<24 | (offset & 0x00ffffff))
}

func (l flashLoc) region() int    { return int(l >> 24) }
func (l flashLoc) offset() uint32 { return uint32(l) & 0x00ffffff }

func (l flashLoc) String() string {
	return fmt.Sprintf("loc(region=%d,offset=0x%x)", l.region(), l.offset())
}

// region is the in-RAM descriptor for one physical flash area (spec.md §4.1).
type region struct {
	phys   AreaDesc
	length uint32 // usable length, == phys.Length
	cur    uint32 // append cursor
	gcSeq  uint8
	id     uint8 // logical region id, areaIDNone (0xff) for scratch
}

func (r *region) freeSpace() uint32 {
	return r.length - r.cur
}

func (r *region) isScratch() bool {
	return r.id == areaIDNone
}

// regionSet owns every region and the flash device backing them. All
// reads/writes are addressed by a packed flashLoc.
type regionSet struct {
	dev     Device
	regions []*region
}

func newRegionSet(dev Device, areas []AreaDesc) *regionSet {
	rs := &regionSet{dev: dev}
	for _, a := range areas {
		rs.regions = append(rs.regions, &region{phys: a, length: uint32(a.Length)})
	}
	return rs
}

// read fetches n bytes starting at loc, failing with ErrRange if the span
// would leave the region.
func (rs *regionSet) read(loc flashLoc, n int) ([]byte, error) {
	idx := loc.region()
	if idx < 0 || idx >= len(rs.regions) {
		return nil, ErrRange
	}
	r := rs.regions[idx]
	off := loc.offset()
	if uint64(off)+uint64(n) > uint64(r.length) {
		return nil, ErrRange
	}
	buf := make([]byte, n)
	if err := rs.dev.ReadFlash(r.phys.Offset+int64(off), buf); err != nil {
		return nil, wrapFlash("read", err)
	}
	return buf, nil
}

// append writes bytes at region rs.regions[idx].cur, which must be the
// current append cursor, and advances it.
func (rs *regionSet) append(idx int, data []byte) (uint32, error) {
	r := rs.regions[idx]
	if uint64(r.cur)+uint64(len(data)) > uint64(r.length) {
		return 0, ErrRange
	}
	off := r.cur
	if err := rs.dev.WriteFlash(r.phys.Offset+int64(off), data); err != nil {
		return 0, wrapFlash("write", err)
	}
	r.cur += uint32(len(data))
	return off, nil
}

// reserveIn scans non-scratch regions in append order looking for n
// contiguous free bytes, without invoking GC. Returns -1 if none found.
func (rs *regionSet) reserveIn(n uint32) int {
	for idx, r := range rs.regions {
		if r.isScratch() {
			continue
		}
		if r.freeSpace() >= n {
			return idx
		}
	}
	return -1
}

// scratchIndex returns the index of the current scratch region, or -1.
func (rs *regionSet) scratchIndex() int {
	for idx, r := range rs.regions {
		if r.isScratch() {
			return idx
		}
	}
	return -1
}

// eraseRegion erases every sector covered by region idx and resets its
// append cursor.
func (rs *regionSet) eraseRegion(idx int) error {
	r := rs.regions[idx]
	// the device erases sector-by-sector; the caller guarantees region
	// length is sector aligned, so one EraseSector call per sector start
	// is sufficient. Since sector size is a driver detail, NFFS simply
	// erases at the region's offset and relies on the driver to handle
	// a single EraseSector call per physical sector it owns; for regions
	// spanning multiple sectors, mount-time area descriptors are expected
	// to list one descriptor per sector-aligned erase unit, matching the
	// original's area-per-erase-unit layout.
	if err := rs.dev.EraseSector(r.phys.Offset); err != nil {
		return wrapFlash("erase", err)
	}
	r.cur = 0
	return nil
}
