package cfb

// Shared fixture builders for the test files in this package. Keeping these
// in one place avoids every _test.go file growing its own slightly
// different way of constructing a minimal in-memory container.

func newRootDirent() *Dirent {
	raw, nameLen := encodeName("Root Entry")
	e := &entry{
		rawName:     raw,
		nameLen:     nameLen,
		typ:         typeRoot,
		color:       colorBlack,
		leftSibID:   noStream,
		rightSibID:  noStream,
		childID:     noStream,
		startSector: noStream,
	}
	return &Dirent{Name: "Root Entry", Type: typeRoot, e: e}
}

func newStorageDirent(name string) *Dirent {
	raw, nameLen := encodeName(name)
	e := &entry{
		rawName:     raw,
		nameLen:     nameLen,
		typ:         typeStorage,
		color:       colorBlack,
		leftSibID:   noStream,
		rightSibID:  noStream,
		childID:     noStream,
		startSector: noStream,
	}
	return &Dirent{Name: name, Type: typeStorage, e: e}
}

func newStreamWithSize(name string, size uint64) *Dirent {
	raw, nameLen := encodeName(name)
	e := &entry{
		rawName:     raw,
		nameLen:     nameLen,
		typ:         typeStream,
		color:       colorBlack,
		leftSibID:   noStream,
		rightSibID:  noStream,
		childID:     noStream,
		startSector: noStream,
		size:        size,
	}
	return &Dirent{Name: name, Type: typeStream, e: e}
}

// newSeedFile builds a minimal File suitable as the "source" passed to
// Write when none of its streams need to be read back (a freshly built
// tree with no pre-existing stream content).
func newSeedFile(sectorSize uint32) *File {
	major := uint16(3)
	if sectorSize == 4096 {
		major = 4
	}
	return &File{
		buf: nil,
		hdr: &header{
			majorVersion:    major,
			minorVersion:    0x003E,
			byteOrder:       0xFFFE,
			miniSectorShift: 6,
		},
		sectorSize: sectorSize,
	}
}
