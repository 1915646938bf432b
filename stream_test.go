package cfb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// streamFixture builds a File with one regular (non-mini) stream spanning
// as many 512-byte sectors as payload needs, and returns that stream's
// Dirent, for exercising ReadStream's sector-crossing path. Requests of
// miniStreamCutoff bytes or more always take the "large"
// path (see stream.go's doc comment on requested-length-based selection),
// so every test built on this fixture must read at least miniStreamCutoff
// bytes at a time to land in the regular FAT chain this fixture sets up.
func streamFixture(t *testing.T, payload []byte) (*File, *Dirent) {
	t.Helper()
	const sectorSize = 512
	dataSectors := (len(payload) + sectorSize - 1) / sectorSize
	if dataSectors == 0 {
		dataSectors = 1
	}
	buf := make([]byte, sectorSize*(2+dataSectors))

	fat := buf[sectorSize : 2*sectorSize]
	binary.LittleEndian.PutUint32(fat[0:4], fatSect)
	for i := 0; i < dataSectors; i++ {
		var next uint32
		if i == dataSectors-1 {
			next = endOfChain
		} else {
			next = uint32(i + 2)
		}
		binary.LittleEndian.PutUint32(fat[(i+1)*4:(i+1)*4+4], next)
	}

	copy(buf[2*sectorSize:], payload)

	h := &header{majorVersion: 3}
	h.headerDifat[0] = 0
	for i := 1; i < difatInHeader; i++ {
		h.headerDifat[i] = freeSect
	}
	h.difatSectorLoc = endOfChain

	f := &File{buf: buf, hdr: h, sectorSize: sectorSize}

	raw, nameLen := encodeName("BigStream")
	e := &entry{
		rawName:     raw,
		nameLen:     nameLen,
		typ:         typeStream,
		startSector: 1,
		size:        uint64(len(payload)),
	}
	return f, &Dirent{Name: "BigStream", Type: typeStream, e: e}
}

func TestReadStreamSectorCrossing(t *testing.T) {
	// len(payload) must be >= miniStreamCutoff so a full-size read takes
	// the large-stream path this fixture's FAT chain actually describes.
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	f, d := streamFixture(t, payload)
	out := make([]byte, len(payload))
	n, err := f.ReadStream(d, 0, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("got %d bytes, want %d", n, len(payload))
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("read content does not match the written payload across the sector boundary")
	}
}

func TestReadStreamPartialOffset(t *testing.T) {
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	f, d := streamFixture(t, payload)
	// request >= miniStreamCutoff bytes so this stays on the large-stream
	// path, per ReadStream's requested-length-based selection.
	out := make([]byte, 4096)
	n, err := f.ReadStream(d, 520, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(out) {
		t.Fatalf("got %d, want %d", n, len(out))
	}
	if !bytes.Equal(out, payload[520:520+4096]) {
		t.Fatal("partial offset read mismatch")
	}
}

func TestReadStreamOutOfBounds(t *testing.T) {
	f, d := streamFixture(t, make([]byte, 10))
	out := make([]byte, 20)
	_, err := f.ReadStream(d, 0, out)
	if err == nil {
		t.Fatal("expected an OutOfBounds error reading past the declared stream size")
	}
	if e, ok := err.(*Error); !ok || e.Kind() != OutOfBounds {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
}

func TestReadStreamOnStorageFails(t *testing.T) {
	f, _ := streamFixture(t, make([]byte, 10))
	storage := newStorageDirent("NotAStream")
	_, err := f.ReadStream(storage, 0, make([]byte, 1))
	if err == nil {
		t.Fatal("expected an error reading a storage as a stream")
	}
}

func TestReadStreamZeroLength(t *testing.T) {
	f, d := streamFixture(t, make([]byte, 10))
	n, err := f.ReadStream(d, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d, want 0", n)
	}
}
