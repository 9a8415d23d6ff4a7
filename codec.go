package nffs

import (
	"bytes"
	"encoding/binary"
)

// On-flash magic values, recovered from the original format's
// area/inode/block magic constants (spec.md §3, supplemented from
// original_source/libs/nffs/src/nffs_priv.h).
const (
	magicArea0 uint32 = 0xb98a31e2
	magicArea1 uint32 = 0x7fb0428c
	magicArea2 uint32 = 0xace08253
	magicArea3 uint32 = 0xb185fc8e
	magicInode uint32 = 0x925f8bc0
	magicBlock uint32 = 0x53ba23b9

	areaVersion  = 0
	areaIDNone   = 0xff // logical region id marking SCRATCH
	shortNameLen = 3    // cached filename prefix length
)

var order = binary.LittleEndian

// regionHeader is the fixed 24-byte record written at offset 0 of every region.
type regionHeader struct {
	Magic  [4]uint32
	Length uint32
	Ver    uint8
	GCSeq  uint8
	_      uint8 // reserved
	ID     uint8
}

const regionHeaderSize = 4*4 + 4 + 1 + 1 + 1 + 1 // 24

func (h *regionHeader) marshal() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, order, h)
	return buf.Bytes()
}

func (h *regionHeader) unmarshal(b []byte) error {
	if len(b) < regionHeaderSize {
		return ErrCorrupt
	}
	r := bytes.NewReader(b[:regionHeaderSize])
	return binary.Read(r, order, h)
}

func (h *regionHeader) magicValid() bool {
	return h.Magic[0] == magicArea0 && h.Magic[1] == magicArea1 &&
		h.Magic[2] == magicArea2 && h.Magic[3] == magicArea3
}

func newRegionHeader(length uint32, gcSeq, id uint8) *regionHeader {
	return &regionHeader{
		Magic:  [4]uint32{magicArea0, magicArea1, magicArea2, magicArea3},
		Length: length,
		Ver:    areaVersion,
		GCSeq:  gcSeq,
		ID:     id,
	}
}

// inodeRecord is the fixed-size portion of an on-flash inode record; the
// filename bytes immediately follow it in flash.
type inodeRecord struct {
	Magic       uint32
	ID          uint32
	Seq         uint32
	ParentID    uint32
	_           uint8 // reserved
	FilenameLen uint8
	CRC         uint16
}

const inodeRecordSize = 4 + 4 + 4 + 4 + 1 + 1 + 2 // 20

// marshal encodes the record (CRC unset) followed by name, computes the
// CRC over everything but the CRC field, and returns the full byte slice
// ready to append to flash.
func (r *inodeRecord) marshal(name []byte) []byte {
	r.FilenameLen = uint8(len(name))
	r.CRC = 0
	buf := new(bytes.Buffer)
	binary.Write(buf, order, r)
	out := buf.Bytes()
	out = append(out, name...)
	crc := crc16(out[:inodeRecordSize-2])
	crc = crc16Update(crc, name)
	order.PutUint16(out[inodeRecordSize-2:inodeRecordSize], crc)
	return out
}

func unmarshalInodeRecord(b []byte) (*inodeRecord, []byte, error) {
	if len(b) < inodeRecordSize {
		return nil, nil, ErrCorrupt
	}
	rec := &inodeRecord{}
	if err := binary.Read(bytes.NewReader(b[:inodeRecordSize]), order, rec); err != nil {
		return nil, nil, ErrCorrupt
	}
	if rec.Magic != magicInode {
		return nil, nil, ErrCorrupt
	}
	total := inodeRecordSize + int(rec.FilenameLen)
	if len(b) < total {
		return nil, nil, ErrCorrupt
	}
	name := b[inodeRecordSize:total]
	stored := rec.CRC
	computed := crc16(b[:inodeRecordSize-2])
	computed = crc16Update(computed, name)
	if computed != stored {
		return nil, nil, ErrCorrupt
	}
	return rec, name, nil
}

// blockRecord is the fixed-size portion of an on-flash data-block record;
// the data bytes immediately follow it in flash.
type blockRecord struct {
	Magic    uint32
	ID       uint32
	Seq      uint32
	InodeID  uint32
	PrevID   uint32
	DataLen  uint16
	CRC      uint16
}

const blockRecordSize = 4 + 4 + 4 + 4 + 4 + 2 + 2 // 24

func (r *blockRecord) marshal(data []byte) []byte {
	r.DataLen = uint16(len(data))
	r.CRC = 0
	buf := new(bytes.Buffer)
	binary.Write(buf, order, r)
	out := buf.Bytes()
	out = append(out, data...)
	crc := crc16(out[:blockRecordSize-2])
	crc = crc16Update(crc, data)
	order.PutUint16(out[blockRecordSize-2:blockRecordSize], crc)
	return out
}

func unmarshalBlockRecord(b []byte) (*blockRecord, []byte, error) {
	if len(b) < blockRecordSize {
		return nil, nil, ErrCorrupt
	}
	rec := &blockRecord{}
	if err := binary.Read(bytes.NewReader(b[:blockRecordSize]), order, rec); err != nil {
		return nil, nil, ErrCorrupt
	}
	if rec.Magic != magicBlock {
		return nil, nil, ErrCorrupt
	}
	total := blockRecordSize + int(rec.DataLen)
	if len(b) < total {
		return nil, nil, ErrCorrupt
	}
	data := b[blockRecordSize:total]
	stored := rec.CRC
	computed := crc16(b[:blockRecordSize-2])
	computed = crc16Update(computed, data)
	if computed != stored {
		return nil, nil, ErrCorrupt
	}
	return rec, data, nil
}

// peekMagic reads just the leading 4-byte magic to decide which record
// type, if any, starts at a given offset (spec.md §4.9 pass 2).
func peekMagic(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return order.Uint32(b[:4]), true
}
