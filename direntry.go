package cfb

import (
	"encoding/binary"
	"unicode/utf16"
)

// object types, spec.md section 3.
const (
	typeEmpty   uint8 = 0x0
	typeStorage uint8 = 0x1
	typeStream  uint8 = 0x2
	typeRoot    uint8 = 0x5
)

// color flags
const (
	colorRed   uint8 = 0x0
	colorBlack uint8 = 0x1
)

// directory entry byte offsets within a 128-byte record.
const (
	direntName         = 0
	direntNameLen      = 64
	direntType         = 66
	direntColor        = 67
	direntLeftSibID    = 68
	direntRightSibID   = 72
	direntChildID      = 76
	direntCLSID        = 80
	direntStateBits    = 96
	direntCreateTime   = 100
	direntModifyTime   = 108
	direntStartSector  = 116
	direntSize         = 120
	direntMaxNameBytes = 64
)

// entry is the decoded 128-byte on-disk directory record.
type entry struct {
	rawName      [32]uint16
	nameLen      uint16
	typ          uint8
	color        uint8
	leftSibID    uint32
	rightSibID   uint32
	childID      uint32
	clsid        [16]byte
	stateBits    [4]byte
	createTime   [8]byte
	modifyTime   [8]byte
	startSector  uint32
	size         uint64
}

func decodeEntry(b []byte) *entry {
	e := &entry{}
	for i := 0; i < 32; i++ {
		e.rawName[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	e.nameLen = binary.LittleEndian.Uint16(b[direntNameLen : direntNameLen+2])
	e.typ = b[direntType]
	e.color = b[direntColor]
	e.leftSibID = binary.LittleEndian.Uint32(b[direntLeftSibID : direntLeftSibID+4])
	e.rightSibID = binary.LittleEndian.Uint32(b[direntRightSibID : direntRightSibID+4])
	e.childID = binary.LittleEndian.Uint32(b[direntChildID : direntChildID+4])
	copy(e.clsid[:], b[direntCLSID:direntCLSID+16])
	copy(e.stateBits[:], b[direntStateBits:direntStateBits+4])
	copy(e.createTime[:], b[direntCreateTime:direntCreateTime+8])
	copy(e.modifyTime[:], b[direntModifyTime:direntModifyTime+8])
	e.startSector = binary.LittleEndian.Uint32(b[direntStartSector : direntStartSector+4])
	e.size = binary.LittleEndian.Uint64(b[direntSize : direntSize+8])
	return e
}

// encode serializes the entry back into a fresh 128-byte record.
func (e *entry) encode() []byte {
	b := make([]byte, dirEntrySize)
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint16(b[i*2:i*2+2], e.rawName[i])
	}
	binary.LittleEndian.PutUint16(b[direntNameLen:direntNameLen+2], e.nameLen)
	b[direntType] = e.typ
	b[direntColor] = e.color
	binary.LittleEndian.PutUint32(b[direntLeftSibID:direntLeftSibID+4], e.leftSibID)
	binary.LittleEndian.PutUint32(b[direntRightSibID:direntRightSibID+4], e.rightSibID)
	binary.LittleEndian.PutUint32(b[direntChildID:direntChildID+4], e.childID)
	copy(b[direntCLSID:direntCLSID+16], e.clsid[:])
	copy(b[direntStateBits:direntStateBits+4], e.stateBits[:])
	copy(b[direntCreateTime:direntCreateTime+8], e.createTime[:])
	copy(b[direntModifyTime:direntModifyTime+8], e.modifyTime[:])
	binary.LittleEndian.PutUint32(b[direntStartSector:direntStartSector+4], e.startSector)
	binary.LittleEndian.PutUint64(b[direntSize:direntSize+8], e.size)
	return b
}

// unusedEntry returns an all-zero, unused directory record with sibling and
// child pointers set to noStream, used to pad the final directory sector.
func unusedEntry() []byte {
	b := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint32(b[direntLeftSibID:direntLeftSibID+4], noStream)
	binary.LittleEndian.PutUint32(b[direntRightSibID:direntRightSibID+4], noStream)
	binary.LittleEndian.PutUint32(b[direntChildID:direntChildID+4], noStream)
	return b
}

// nameBytes returns the name as its raw UTF-16LE byte encoding, including
// the terminating NUL pair encoded in nameLen, as stream_cmp_hash and
// prehash_metadata in the original source operate on these raw bytes
// rather than a decoded Go string.
func (e *entry) nameBytes() []byte {
	n := int(e.nameLen)
	if n > direntMaxNameBytes {
		n = direntMaxNameBytes
	}
	b := make([]byte, 64)
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint16(b[i*2:i*2+2], e.rawName[i])
	}
	return b[:n]
}

// decodedName converts the raw UTF-16LE name (minus its NUL terminator)
// into a Go string.
func (e *entry) decodedName() string {
	n := 0
	if e.nameLen > 2 {
		n = int(e.nameLen/2 - 1)
	} else if e.nameLen > 0 {
		n = 1
	}
	if n <= 0 {
		return ""
	}
	if n > 32 {
		n = 32
	}
	return string(utf16.Decode(e.rawName[:n]))
}

// encodeName fills rawName/nameLen from a Go string, truncating to the
// 32-UTF16-codeunit (64-byte) limit including the NUL terminator.
func encodeName(name string) ([32]uint16, uint16) {
	var raw [32]uint16
	u := utf16.Encode([]rune(name))
	if len(u) > 31 {
		u = u[:31]
	}
	copy(raw[:], u)
	// raw[len(u)] is left as zero, acting as the NUL terminator
	return raw, uint16((len(u) + 1) * 2)
}
