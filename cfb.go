// Copyright 2013 Richard Lehane. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfb reads, digests and rewrites Compound File Binary Format
// containers, the OLE2 structured storage format used by Windows Installer
// .msi packages. It exists to support MSI Authenticode-style code signing
// tooling: computing the pre-hash and content hashes the format requires,
// inserting or replacing the DigitalSignature and MsiDigitalSignatureEx
// streams, and rewriting a whole container back out with a correctly
// rebuilt FAT, MiniFAT and directory sector chain.
//
// Choice of cryptographic primitive is deliberately out of scope: every
// hashing entry point here takes an io.Writer sink, leaving hash selection
// and digest finalization to the caller.
package cfb

// File is an opened, fully parsed CFBF container: a decoded header plus the
// in-memory directory forest expanded from it. buf is the caller's whole
// container buffer; streams are read directly out of it on demand rather
// than copied up front.
type File struct {
	buf             []byte
	hdr             *header
	sectorSize      uint32
	miniStreamStart uint32
	root            *Dirent
}

// Open parses buf as a CFBF container, decoding its header and directory
// sector chain and expanding it into the in-memory parent/children forest
// reachable from Root.
func Open(buf []byte) (*File, error) {
	hdr, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	if min := 3 * int(hdr.sectorSize()); len(buf) < min {
		return nil, newErr(TooSmall, "buffer shorter than 3 times the sector size", int64(len(buf)))
	}
	f := &File{
		buf:        buf,
		hdr:        hdr,
		sectorSize: hdr.sectorSize(),
	}
	entries, err := f.readDirEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, newErr(Corrupt, "empty directory sector chain", 0)
	}
	root, err := buildTree(entries)
	if err != nil {
		return nil, err
	}
	f.root = root
	f.miniStreamStart = root.e.startSector
	return f, nil
}

// Root returns the container's root storage entry, the top of the
// in-memory directory forest.
func (f *File) Root() *Dirent { return f.root }

// readDirEntries walks the directory sector chain starting at the header's
// directory sector location, decoding every 128-byte record it finds.
func (f *File) readDirEntries() ([]*entry, error) {
	var entries []*entry
	sector := f.hdr.dirSectorLoc
	entriesPerSector := int(f.sectorSize / dirEntrySize)
	seen := make(map[uint32]bool)
	for sector != endOfChain && sector != freeSect {
		if seen[sector] {
			return nil, newErr(Corrupt, "cycle in directory sector chain", int64(sector))
		}
		seen[sector] = true
		base := f.sectorOffsetToAddress(sector, 0)
		if base < 0 || int(base)+int(f.sectorSize) > len(f.buf) {
			return nil, newErr(OutOfBounds, "directory sector out of bounds", int64(sector))
		}
		for i := 0; i < entriesPerSector; i++ {
			off := int(base) + i*int(dirEntrySize)
			entries = append(entries, decodeEntry(f.buf[off:off+int(dirEntrySize)]))
		}
		next, err := f.nextSector(sector)
		if err != nil {
			return nil, err
		}
		sector = next
	}
	return entries, nil
}
