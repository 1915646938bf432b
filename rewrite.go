package cfb

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

// worst-case output size thresholds, spec.md section 9: above the first,
// the rewriter upgrades to 4096-byte sectors; above the second it refuses
// outright, since this package never writes an extended DIFAT chain. The
// first is what 109 FAT sectors address with 512-byte sectors, the second
// what they address with 4096-byte sectors (each plus one header sector).
const (
	sectorUpgradeThreshold = 7143936
	maxOutputSize          = 457183232
)

// outHeader is the header of a container under construction: the fields a
// rewrite actually decides, as opposed to the read-only header of the
// source container it started from.
type outHeader struct {
	minorVersion     uint16
	byteOrder        uint16
	majorVersion     uint16
	sectorShift      uint16
	miniSectorShift  uint16
	numDirSectors    uint32
	numFatSectors    uint32
	dirSectorLoc     uint32
	miniFatSectorLoc uint32
	numMiniFat       uint32
	difatSectorLoc   uint32
	numDifat         uint32
	headerDifat      [109]uint32
}

func (h *outHeader) encode() []byte {
	b := make([]byte, lenHeader)
	binary.LittleEndian.PutUint64(b[offSignature:offSignature+8], signature)
	binary.LittleEndian.PutUint16(b[offMinorVersion:offMinorVersion+2], h.minorVersion)
	binary.LittleEndian.PutUint16(b[offMajorVersion:offMajorVersion+2], h.majorVersion)
	binary.LittleEndian.PutUint16(b[offByteOrder:offByteOrder+2], h.byteOrder)
	binary.LittleEndian.PutUint16(b[offSectorShift:offSectorShift+2], h.sectorShift)
	binary.LittleEndian.PutUint16(b[offMiniSectorShift:offMiniSectorShift+2], h.miniSectorShift)
	binary.LittleEndian.PutUint32(b[offNumDirSectors:offNumDirSectors+4], h.numDirSectors)
	binary.LittleEndian.PutUint32(b[offNumFatSectors:offNumFatSectors+4], h.numFatSectors)
	binary.LittleEndian.PutUint32(b[offDirSectorLoc:offDirSectorLoc+4], h.dirSectorLoc)
	binary.LittleEndian.PutUint32(b[offTransaction:offTransaction+4], 0)
	binary.LittleEndian.PutUint32(b[offMiniCutoff:offMiniCutoff+4], uint32(miniStreamCutoff))
	binary.LittleEndian.PutUint32(b[offMiniFatLoc:offMiniFatLoc+4], h.miniFatSectorLoc)
	binary.LittleEndian.PutUint32(b[offNumMiniFat:offNumMiniFat+4], h.numMiniFat)
	binary.LittleEndian.PutUint32(b[offDifatLoc:offDifatLoc+4], h.difatSectorLoc)
	binary.LittleEndian.PutUint32(b[offNumDifat:offNumDifat+4], h.numDifat)
	for i := 0; i < difatInHeader; i++ {
		off := offHeaderDifat + i*4
		binary.LittleEndian.PutUint32(b[off:off+4], h.headerDifat[i])
	}
	return b
}

// rewriter accumulates a new container's body (everything after the header
// sector) in memory, so that a failure midway through never leaks a
// partially written result to the caller's sink.
type rewriter struct {
	sectorSize uint32
	ministream []byte
	minifat    []byte
	fat        []byte
	body       *bytes.Buffer
	outHdr     *outHeader

	sectorNum     uint32
	miniSectorNum uint32

	fatSectorsCount     uint32
	minifatSectorsCount uint32
	dirtreeSectorsCount uint32
}

func newRewriter(hdr *header, sectorSize uint32) *rewriter {
	oh := &outHeader{
		minorVersion:    hdr.minorVersion,
		byteOrder:       hdr.byteOrder,
		miniSectorShift: hdr.miniSectorShift,
		difatSectorLoc:  endOfChain,
	}
	if sectorSize == 4096 {
		oh.majorVersion = 4
		oh.sectorShift = 0x000C
	} else {
		oh.majorVersion = 3
		oh.sectorShift = 0x0009
	}
	for i := 1; i < difatInHeader; i++ {
		oh.headerDifat[i] = freeSect
	}
	return &rewriter{
		sectorSize: sectorSize,
		body:       new(bytes.Buffer),
		outHdr:     oh,
	}
}

func (rw *rewriter) appendFat(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	rw.fat = append(rw.fat, b[:]...)
}

func (rw *rewriter) appendMinifat(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	rw.minifat = append(rw.minifat, b[:]...)
}

func roundUp(n, to int) int {
	if to <= 0 {
		return n
	}
	return ((n + to - 1) / to) * to
}

// selectSectorSize picks the output sector size (msiout_set in the original
// source): it starts from the source container's own sector size, upgrades
// to 4096 once the worst-case total output size crosses sectorUpgradeThreshold,
// and refuses altogether past maxOutputSize.
func selectSectorSize(f *File, lenMSI, lenMSIEx int) (uint32, error) {
	var msiSize int
	if lenMSI <= int(miniStreamCutoff) {
		msiSize = roundUp(lenMSI, int(miniSectorSize))
	} else {
		msiSize = roundUp(lenMSI, int(f.sectorSize))
	}
	msiexSize := roundUp(lenMSIEx, int(miniSectorSize))
	total := len(f.buf) + msiSize + msiexSize
	if total > maxOutputSize {
		return 0, newErr(UnsupportedLayout, "rewritten container would exceed the non-extended-DIFAT size limit", int64(total))
	}
	sectorSize := f.sectorSize
	if total > sectorUpgradeThreshold {
		sectorSize = 4096
	}
	return sectorSize, nil
}

// Write rewrites the container rooted at root back out to sink, substituting
// pMSI and pMSIEx for the root's DigitalSignature and MsiDigitalSignatureEx
// stream contents. When pMSI is non-empty it first inserts the
// DigitalSignature stream into root itself, plus MsiDigitalSignatureEx when
// pMSIEx is non-empty (an existing one is removed otherwise), mirroring
// stream_handle's own call to signature_insert in the original source, so
// callers normally don't need to call
// SignatureInsert themselves before signing.
//
// The whole output is staged in memory and flushed to sink in one pass at
// the end; no partial container ever reaches sink on error.
func Write(f *File, root *Dirent, pMSI, pMSIEx []byte, sink io.Writer) error {
	sectorSize, err := selectSectorSize(f, len(pMSI), len(pMSIEx))
	if err != nil {
		return err
	}
	if len(pMSI) > 0 {
		if err := SignatureInsert(root, len(pMSIEx)); err != nil {
			return err
		}
	}

	rw := newRewriter(f.hdr, sectorSize)
	if err := rw.streamHandle(f, root, pMSI, pMSIEx, true); err != nil {
		return err
	}
	rw.ministreamSave(root)
	rw.minifatSave()
	if err := rw.dirtreeSave(root); err != nil {
		return err
	}
	if err := rw.fatSave(); err != nil {
		return err
	}
	rw.finalizeHeader()

	hdrBytes := rw.outHdr.encode()
	if _, err := sink.Write(hdrBytes); err != nil {
		return newErr(ShortWrite, "header write failed", 0)
	}
	if pad := int(sectorSize) - len(hdrBytes); pad > 0 {
		if _, err := sink.Write(make([]byte, pad)); err != nil {
			return newErr(ShortWrite, "header padding write failed", 0)
		}
	}
	if _, err := sink.Write(rw.body.Bytes()); err != nil {
		return newErr(ShortWrite, "body write failed", 0)
	}
	return nil
}

// streamHandle walks d's subtree depth-first, placing every stream's bytes
// into either the mini-stream or the regular sector area depending on
// length, and extending the corresponding FAT chain. For the root's two
// signature streams, content comes from pMSI/pMSIEx rather than the source
// file (stream_read in the original source).
func (rw *rewriter) streamHandle(f *File, d *Dirent, pMSI, pMSIEx []byte, isRoot bool) error {
	for _, child := range d.Children {
		if !child.IsStream() {
			if err := rw.streamHandle(f, child, nil, nil, false); err != nil {
				return err
			}
			continue
		}

		var indata []byte
		switch {
		case isRoot && child.Name == digitalSignatureName:
			indata = pMSI
		case isRoot && child.Name == digitalSignatureExName:
			indata = pMSIEx
		default:
			buf := make([]byte, child.e.size)
			n, err := f.ReadStream(child, 0, buf)
			if err != nil {
				return err
			}
			indata = buf[:n]
		}

		inlen := len(indata)
		child.e.size = uint64(inlen)
		if inlen == 0 {
			continue
		}

		if inlen < int(miniStreamCutoff) {
			child.e.startSector = rw.miniSectorNum
			rw.ministream = append(rw.ministream, indata...)
			if r := inlen % int(miniSectorSize); r != 0 {
				rw.ministream = append(rw.ministream, make([]byte, int(miniSectorSize)-r)...)
			}
			remaining := inlen
			for remaining > int(miniSectorSize) {
				rw.miniSectorNum++
				rw.appendMinifat(rw.miniSectorNum)
				remaining -= int(miniSectorSize)
			}
			rw.appendMinifat(endOfChain)
			rw.miniSectorNum++
		} else {
			child.e.startSector = rw.sectorNum
			rw.body.Write(indata)
			if r := inlen % int(rw.sectorSize); r != 0 {
				rw.body.Write(make([]byte, int(rw.sectorSize)-r))
			}
			remaining := inlen
			for remaining > int(rw.sectorSize) {
				rw.sectorNum++
				rw.appendFat(rw.sectorNum)
				remaining -= int(rw.sectorSize)
			}
			rw.appendFat(endOfChain)
			rw.sectorNum++
		}
	}
	return nil
}

// ministreamSave writes the accumulated mini-stream out as a single regular
// stream belonging to root, chaining its own FAT entries. An empty
// mini-stream (no stream ever small enough to land there) consumes no
// sector and no FAT entry at all, matching minifatSave's treatment of an
// empty MiniFAT: since root's declared size is then also zero, nothing
// will ever dereference its startSectorLocation.
func (rw *rewriter) ministreamSave(root *Dirent) {
	if len(rw.ministream) == 0 {
		root.e.startSector = endOfChain
		return
	}
	sectorsCount := uint32((len(rw.ministream) + int(rw.sectorSize) - 1) / int(rw.sectorSize))
	root.e.startSector = rw.sectorNum
	rw.body.Write(rw.ministream)
	if r := len(rw.ministream) % int(rw.sectorSize); r != 0 {
		rw.body.Write(make([]byte, int(rw.sectorSize)-r))
	}
	for i := uint32(1); i < sectorsCount; i++ {
		rw.appendFat(rw.sectorNum + i)
	}
	rw.appendFat(endOfChain)
	rw.sectorNum += sectorsCount
}

// minifatSave writes the accumulated MiniFAT out as a regular stream. An
// empty MiniFAT (no stream ever landed in the mini-stream) consumes no
// sector at all and leaves the header's location field as ENDOFCHAIN.
func (rw *rewriter) minifatSave() {
	if len(rw.minifat) == 0 {
		rw.outHdr.miniFatSectorLoc = endOfChain
		rw.minifatSectorsCount = 0
		return
	}
	rw.outHdr.miniFatSectorLoc = rw.sectorNum
	rw.body.Write(rw.minifat)
	var eoc [4]byte
	binary.LittleEndian.PutUint32(eoc[:], endOfChain)
	rw.body.Write(eoc[:])
	total := len(rw.minifat) + 4
	if r := total % int(rw.sectorSize); r != 0 {
		pad := make([]byte, int(rw.sectorSize)-r)
		for i := range pad {
			pad[i] = 0xFF
		}
		rw.body.Write(pad)
	}
	sectorsCount := uint32((total + int(rw.sectorSize) - 1) / int(rw.sectorSize))
	for i := uint32(1); i < sectorsCount; i++ {
		rw.appendFat(rw.sectorNum + i)
	}
	rw.appendFat(endOfChain)
	rw.sectorNum += sectorsCount
	rw.minifatSectorsCount = sectorsCount
}

// direntCmpTree implements the on-disk ("tree") sort order of spec.md
// section 4.4: shorter names first, then codepoint-wise lexicographic over
// the raw UTF-16LE name bytes.
func direntCmpTree(a, b *Dirent) int {
	an, bn := a.e.nameBytes(), b.e.nameBytes()
	if len(an) != len(bn) {
		if len(an) < len(bn) {
			return -1
		}
		return 1
	}
	n := len(an)
	if n >= 2 {
		n -= 2 // the terminator never participates in the comparison
	}
	for i := 0; i+1 < n; i += 2 {
		ca := uint16(an[i]) | uint16(an[i+1])<<8
		cb := uint16(bn[i]) | uint16(bn[i+1])<<8
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// dirtreeSave lays every directory entry back out on disk as a degenerate
// right-linked list (spec.md section 9): every node is Black, every
// leftSibID is NOSTREAM, and a storage's children are threaded through
// rightSibID in tree order, exactly the shape dirtree_save/dirents_save
// builds in the original source.
//
// Unlike the original's single recursive pass, which predicts a not-yet-
// visited sibling's stream ID via a running entry count, this assigns every
// node's ID with a first preorder pass and only then links childID/
// rightSibID by direct lookup. The resulting on-disk shape is identical;
// only the bookkeeping used to get there differs.
func (rw *rewriter) dirtreeSave(root *Dirent) error {
	rw.outHdr.dirSectorLoc = rw.sectorNum
	root.e.size = uint64(len(rw.ministream))

	ids := map[*Dirent]uint32{root: 0}
	order := []*Dirent{root}
	var number func(d *Dirent)
	number = func(d *Dirent) {
		sort.SliceStable(d.Children, func(i, j int) bool {
			return direntCmpTree(d.Children[i], d.Children[j]) < 0
		})
		for _, c := range d.Children {
			ids[c] = uint32(len(order))
			order = append(order, c)
		}
		for _, c := range d.Children {
			if c.IsStorage() {
				number(c)
			}
		}
	}
	number(root)

	for _, d := range order {
		d.e.color = colorBlack
		d.e.leftSibID = noStream
	}
	root.e.rightSibID = noStream

	linkSiblings := func(children []*Dirent) {
		for i, c := range children {
			if i == len(children)-1 {
				c.e.rightSibID = noStream
			} else {
				c.e.rightSibID = ids[children[i+1]]
			}
		}
	}
	for _, d := range order {
		if !d.IsStorage() {
			continue
		}
		linkSiblings(d.Children)
		if len(d.Children) > 0 {
			d.e.childID = ids[d.Children[0]]
		} else {
			d.e.childID = noStream
		}
	}

	dirtreeLen := 0
	for _, d := range order {
		enc := d.e.encode()
		rw.body.Write(enc)
		dirtreeLen += len(enc)
	}
	if r := dirtreeLen % int(rw.sectorSize); r != 0 {
		unused := unusedEntry()
		for remain := int(rw.sectorSize) - r; remain > 0; remain -= len(unused) {
			rw.body.Write(unused)
			dirtreeLen += len(unused)
		}
	}
	sectorsCount := uint32((dirtreeLen + int(rw.sectorSize) - 1) / int(rw.sectorSize))
	for i := uint32(1); i < sectorsCount; i++ {
		rw.appendFat(rw.sectorNum + i)
	}
	rw.appendFat(endOfChain)
	rw.sectorNum += sectorsCount
	rw.dirtreeSectorsCount = sectorsCount
	return nil
}

// fatSave appends FATSECT markers for its own sectors into the FAT it is
// about to write, records their locations in the header's embedded DIFAT,
// pads with FREESECT to a sector boundary, and writes the finished FAT.
func (rw *rewriter) fatSave() error {
	sectorSize := int(rw.sectorSize)
	estimate := (len(rw.fat) + sectorSize - 1) / sectorSize
	fatSectorsCount := (len(rw.fat) + estimate*4 + sectorSize - 1) / sectorSize

	for i := 0; i < fatSectorsCount; i++ {
		rw.appendFat(fatSect)
	}
	if fatSectorsCount > difatInHeader {
		return newErr(UnsupportedLayout, "rewritten container needs more FAT sectors than fit in the header DIFAT", int64(fatSectorsCount))
	}
	for i := 0; i < fatSectorsCount; i++ {
		rw.outHdr.headerDifat[i] = rw.sectorNum + uint32(i)
	}
	rw.sectorNum += uint32(fatSectorsCount)

	if r := len(rw.fat) % sectorSize; r != 0 {
		pad := make([]byte, sectorSize-r)
		for i := range pad {
			pad[i] = 0xFF
		}
		rw.fat = append(rw.fat, pad...)
	}
	rw.body.Write(rw.fat)
	rw.fatSectorsCount = uint32(fatSectorsCount)
	return nil
}

func (rw *rewriter) finalizeHeader() {
	rw.outHdr.numFatSectors = rw.fatSectorsCount
	rw.outHdr.numMiniFat = rw.minifatSectorsCount
	if rw.sectorSize == 4096 {
		rw.outHdr.numDirSectors = rw.dirtreeSectorsCount
	}
}
