package cfb

// deleteChild removes, in place, every child of parent whose raw name bytes
// match name (compared over the shorter of the two lengths, matching the
// original's memcmp-with-MIN-length comparison), not just the first. It
// refuses to delete a storage, aborting immediately on the first such match
// exactly as msi_dirent_delete does.
func deleteChild(parent *Dirent, name []byte) error {
	kept := make([]*Dirent, 0, len(parent.Children))
	for _, child := range parent.Children {
		cn := child.e.nameBytes()
		n := len(cn)
		if len(name) < n {
			n = len(name)
		}
		if !bytesEqual(cn[:n], name[:n]) {
			kept = append(kept, child)
			continue
		}
		if !child.IsStream() {
			return newErr(CannotMutateStorage, "cannot delete or replace a storage", int64(child.Type))
		}
	}
	parent.Children = kept
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// newStreamDirent builds a fresh, empty Stream Dirent named name, with all
// sibling/child pointers set to noStream and all metadata zeroed, exactly
// as dirent_add does in the original source.
func newStreamDirent(name string) *Dirent {
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
	}
	return &Dirent{Name: name, Type: typeStream, e: e}
}

// insertStream deletes any existing child of parent with the given name,
// then appends a fresh empty stream Dirent with that name.
func insertStream(parent *Dirent, name string) error {
	if err := deleteChild(parent, []byte(nameBytesOf(name))); err != nil {
		return err
	}
	parent.Children = append(parent.Children, newStreamDirent(name))
	return nil
}

func nameBytesOf(name string) []byte {
	raw, nameLen := encodeName(name)
	e := &entry{rawName: raw, nameLen: nameLen}
	return e.nameBytes()
}

// SignatureInsert inserts (or replaces) the DigitalSignature stream under
// root, and the MsiDigitalSignatureEx stream if lenMSIEx > 0 (deleting it
// if present and lenMSIEx == 0), mirroring signature_insert in the
// original source. The actual signature bytes are supplied later, at
// Write time.
func SignatureInsert(root *Dirent, lenMSIEx int) error {
	if lenMSIEx > 0 {
		if err := insertStream(root, digitalSignatureExName); err != nil {
			return err
		}
	} else {
		if err := deleteChild(root, []byte(nameBytesOf(digitalSignatureExName))); err != nil {
			return err
		}
	}
	return insertStream(root, digitalSignatureName)
}
