package cfb

import "encoding/binary"

// sectorOffsetToAddress turns a (sector, offset) pair into an absolute byte
// address within f.buf, or -1 if it falls outside the buffer. Sector 0
// begins right after the header sector, at byte offset sectorSize.
func (f *File) sectorOffsetToAddress(sector, offset uint32) int64 {
	if sector >= maxRegSect || uint64(offset) >= uint64(f.sectorSize) {
		return -1
	}
	addr := uint64(f.sectorSize)*uint64(sector+1) + uint64(offset)
	if addr >= uint64(len(f.buf)) {
		return -1
	}
	return int64(addr)
}

// miniSectorOffsetToAddress is the mini-stream analogue: it resolves the
// given mini-sector/offset through the root entry's stream, which is itself
// chased through the regular FAT.
func (f *File) miniSectorOffsetToAddress(miniSector, offset uint32) int64 {
	if miniSector >= maxRegSect || offset >= miniSectorSize {
		return -1
	}
	sector, off, err := f.locateFinal(f.miniStreamStart, miniSector*miniSectorSize+offset)
	if err != nil {
		return -1
	}
	return f.sectorOffsetToAddress(sector, off)
}

// fatSectorLocation resolves the location of FAT sector number k, reading
// the first 109 straight from the header and walking the DIFAT chain
// (consuming entriesPerSector-1 pointers per hop) for any index beyond that.
func (f *File) fatSectorLocation(k uint32) (uint32, error) {
	if k < uint32(difatInHeader) {
		return f.hdr.headerDifat[k], nil
	}
	k -= uint32(difatInHeader)
	entriesPerSector := f.sectorSize/4 - 1
	loc := f.hdr.difatSectorLoc
	for k >= entriesPerSector {
		k -= entriesPerSector
		addr := f.sectorOffsetToAddress(loc, f.sectorSize-4)
		if addr < 0 {
			return 0, newErr(OutOfBounds, "DIFAT chain pointer out of bounds", int64(loc))
		}
		loc = binary.LittleEndian.Uint32(f.buf[addr : addr+4])
	}
	addr := f.sectorOffsetToAddress(loc, k*4)
	if addr < 0 {
		return 0, newErr(OutOfBounds, "DIFAT sector entry out of bounds", int64(loc))
	}
	return binary.LittleEndian.Uint32(f.buf[addr : addr+4]), nil
}

// nextSector follows the regular FAT chain.
func (f *File) nextSector(sector uint32) (uint32, error) {
	entriesPerSector := f.sectorSize / 4
	fatSector, err := f.fatSectorLocation(sector / entriesPerSector)
	if err != nil {
		return 0, err
	}
	addr := f.sectorOffsetToAddress(fatSector, (sector%entriesPerSector)*4)
	if addr < 0 {
		return 0, newErr(OutOfBounds, "FAT entry out of bounds", int64(sector))
	}
	return binary.LittleEndian.Uint32(f.buf[addr : addr+4]), nil
}

// nextMiniSector follows the MiniFAT chain, itself stored as a regular
// stream starting at the header's mini FAT sector location.
func (f *File) nextMiniSector(miniSector uint32) (uint32, error) {
	sector, off, err := f.locateFinal(f.hdr.miniFatSectorLoc, miniSector*4)
	if err != nil {
		return 0, err
	}
	addr := f.sectorOffsetToAddress(sector, off)
	if addr < 0 {
		return 0, newErr(OutOfBounds, "MiniFAT entry out of bounds", int64(miniSector))
	}
	return binary.LittleEndian.Uint32(f.buf[addr : addr+4]), nil
}

// locateFinal walks sector chain links (via next) until offset fits within
// a single sector, returning the final (sector, offset) pair.
func (f *File) locateFinal(sector, offset uint32) (uint32, uint32, error) {
	for offset >= f.sectorSize {
		offset -= f.sectorSize
		var err error
		sector, err = f.nextSector(sector)
		if err != nil {
			return 0, 0, err
		}
	}
	return sector, offset, nil
}

// locateFinalMini is the mini-sector analogue of locateFinal.
func (f *File) locateFinalMini(sector, offset uint32) (uint32, uint32, error) {
	for offset >= miniSectorSize {
		offset -= miniSectorSize
		var err error
		sector, err = f.nextMiniSector(sector)
		if err != nil {
			return 0, 0, err
		}
	}
	return sector, offset, nil
}
