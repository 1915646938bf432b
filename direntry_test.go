package cfb

import (
	"bytes"
	"testing"
)

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	raw, nameLen := encodeName("DigitalSignature")
	want := &entry{
		rawName:     raw,
		nameLen:     nameLen,
		typ:         typeStream,
		color:       colorBlack,
		leftSibID:   noStream,
		rightSibID:  3,
		childID:     noStream,
		startSector: 7,
		size:        1234,
	}
	want.clsid[0] = 0xAB
	want.stateBits[0] = 0x01
	want.createTime[0] = 0x11
	want.modifyTime[0] = 0x22

	got := decodeEntry(want.encode())
	if got.nameLen != want.nameLen || got.typ != want.typ || got.color != want.color {
		t.Fatalf("header fields mismatch: got %+v, want %+v", got, want)
	}
	if got.leftSibID != want.leftSibID || got.rightSibID != want.rightSibID || got.childID != want.childID {
		t.Fatalf("sibling/child ids mismatch: got %+v, want %+v", got, want)
	}
	if got.startSector != want.startSector || got.size != want.size {
		t.Fatalf("stream fields mismatch: got %+v, want %+v", got, want)
	}
	if got.clsid != want.clsid || got.stateBits != want.stateBits {
		t.Fatalf("clsid/state mismatch: got %+v, want %+v", got, want)
	}
	if got.decodedName() != "DigitalSignature" {
		t.Fatalf("decodedName: got %q", got.decodedName())
	}
}

func TestEncodeNameMaxLength(t *testing.T) {
	// 31 codeunits is the longest name that still leaves room for the NUL
	// terminator inside the 32-codeunit/64-byte field.
	name := bytes.Repeat([]byte("a"), 31)
	raw, nameLen := encodeName(string(name))
	if nameLen != 64 {
		t.Fatalf("nameLen: got %d, want 64", nameLen)
	}
	if raw[31] != 0 {
		t.Fatalf("expected the 32nd codeunit to be the NUL terminator, got %d", raw[31])
	}
}

func TestEncodeNameTruncatesOverlong(t *testing.T) {
	name := bytes.Repeat([]byte("b"), 40)
	raw, nameLen := encodeName(string(name))
	if nameLen != 64 {
		t.Fatalf("nameLen: got %d, want 64 (truncated)", nameLen)
	}
	e := &entry{rawName: raw, nameLen: nameLen}
	if got := len(e.nameBytes()); got != 64 {
		t.Fatalf("nameBytes length: got %d, want 64", got)
	}
}

func TestUnusedEntryPointers(t *testing.T) {
	u := decodeEntry(unusedEntry())
	if u.leftSibID != noStream || u.rightSibID != noStream || u.childID != noStream {
		t.Fatalf("unused entry must have all pointers set to noStream, got %+v", u)
	}
}

func TestNameBytesSharedPrefixComparable(t *testing.T) {
	rawA, lenA := encodeName("Alpha")
	rawB, lenB := encodeName("AlphaBeta")
	a := &entry{rawName: rawA, nameLen: lenA}
	b := &entry{rawName: rawB, nameLen: lenB}
	an, bn := a.nameBytes(), b.nameBytes()
	// nameBytes keeps the NUL terminator; compare Alpha's bytes without it.
	an = an[:len(an)-2]
	if !bytes.Equal(an, bn[:len(an)]) {
		t.Fatalf("expected %q's raw bytes without terminator to be a prefix of %q's", "Alpha", "AlphaBeta")
	}
}
