package cfb

// ReadStream copies up to len(out) bytes of d's stream content starting at
// the given logical offset into out, returning the number of bytes copied.
//
// Path selection reproduces the original implementation's behavior (see
// spec.md sections 4.2 and 9): the *requested length*, not the stream's
// total size, decides whether the mini-stream or the regular FAT chain is
// walked. Every call this package makes internally requests a stream's
// full declared size in one call, so the distinction never bites its own
// digest/rewrite paths; external callers that split a read into several
// small chunks against a stream whose total size exceeds the cutoff
// inherit the original's quirk.
func (f *File) ReadStream(d *Dirent, offset int64, out []byte) (int, error) {
	if !d.IsStream() {
		return 0, errNoStream
	}
	n := len(out)
	if n == 0 {
		return 0, nil
	}
	if offset < 0 || uint64(offset)+uint64(n) > d.e.size {
		return 0, newErr(OutOfBounds, "read past end of stream", offset)
	}
	mini := uint64(n) < miniStreamCutoff
	sector := d.e.startSector
	var off uint32
	if offset > 0 {
		so, fo, err := f.locateOffset(sector, uint32(offset), mini)
		if err != nil {
			return 0, err
		}
		sector, off = so, fo
	}

	remaining := n
	pos := 0
	for remaining > 0 {
		var addr int64
		var chunkCap uint32
		if mini {
			addr = f.miniSectorOffsetToAddress(sector, off)
			chunkCap = miniSectorSize - off
		} else {
			addr = f.sectorOffsetToAddress(sector, off)
			chunkCap = f.sectorSize - off
		}
		if addr < 0 {
			return 0, newErr(OutOfBounds, "stream chain address out of bounds", int64(sector))
		}
		take := remaining
		if uint32(take) > chunkCap {
			take = int(chunkCap)
		}
		if int(addr)+take > len(f.buf) {
			return 0, newErr(OutOfBounds, "stream read would exceed buffer", addr)
		}
		copy(out[pos:pos+take], f.buf[addr:int(addr)+take])
		pos += take
		remaining -= take
		off = 0
		if remaining == 0 {
			break
		}
		var err error
		if mini {
			sector, err = f.nextMiniSector(sector)
		} else {
			sector, err = f.nextSector(sector)
		}
		if err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// locateOffset is locateFinal/locateFinalMini dispatched on the mini flag.
func (f *File) locateOffset(sector, offset uint32, mini bool) (uint32, uint32, error) {
	if mini {
		return f.locateFinalMini(sector, offset)
	}
	return f.locateFinal(sector, offset)
}
