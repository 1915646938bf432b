package cfb

import (
	"io"
	"sort"
)

const (
	digitalSignatureName   = "\x05DigitalSignature"
	digitalSignatureExName = "\x05MsiDigitalSignatureEx"
)

// isSignatureName reports whether name is exactly one of the two well-known
// signature stream names (spec.md section 6). Other names that also start
// with codepoint 0x0005, such as \x05SummaryInformation, do not match.
func isSignatureName(name string) bool {
	return name == digitalSignatureName || name == digitalSignatureExName
}

// hashSortedChildren returns a copy of children sorted by the "hash" order
// of spec.md section 4.5: byte-wise comparison over the shared prefix of
// each pair's raw name bytes, with the longer name winning ties.
func hashSortedChildren(children []*Dirent) []*Dirent {
	out := make([]*Dirent, len(children))
	copy(out, children)
	sort.SliceStable(out, func(i, j int) bool {
		return direntCmpHash(out[i], out[j]) < 0
	})
	return out
}

func direntCmpHash(a, b *Dirent) int {
	an, bn := a.e.nameBytes(), b.e.nameBytes()
	n := len(an)
	if len(bn) < n {
		n = len(bn)
	}
	for i := 0; i < n; i++ {
		if an[i] != bn[i] {
			if an[i] < bn[i] {
				return -1
			}
			return 1
		}
	}
	// apparently the longer one wins
	if len(an) == len(bn) {
		return 0
	}
	if len(an) > len(bn) {
		return -1
	}
	return 1
}

// Prehash writes the MsiDigitalSignatureEx pre-hash, covering only
// extended metadata (names, sizes, CLSIDs, state bits, timestamps), to
// sink. It never reads stream content.
func Prehash(root *Dirent, sink io.Writer) error {
	return prehashDir(root, sink, true)
}

func prehashMetadata(d *Dirent, sink io.Writer, isRoot bool) error {
	e := d.e
	if !isRoot {
		nb := e.nameBytes()
		if len(nb) >= 2 {
			if _, err := sink.Write(nb[:len(nb)-2]); err != nil {
				return newErr(ShortWrite, "prehash metadata write failed", 0)
			}
		}
	}
	if e.typ != typeStream {
		if _, err := sink.Write(e.clsid[:]); err != nil {
			return newErr(ShortWrite, "prehash clsid write failed", 0)
		}
	} else {
		var sz [4]byte
		sz[0] = byte(e.size)
		sz[1] = byte(e.size >> 8)
		sz[2] = byte(e.size >> 16)
		sz[3] = byte(e.size >> 24)
		if _, err := sink.Write(sz[:]); err != nil {
			return newErr(ShortWrite, "prehash size write failed", 0)
		}
	}
	if _, err := sink.Write(e.stateBits[:]); err != nil {
		return newErr(ShortWrite, "prehash state bits write failed", 0)
	}
	if !isRoot {
		if _, err := sink.Write(e.createTime[:]); err != nil {
			return newErr(ShortWrite, "prehash create time write failed", 0)
		}
		if _, err := sink.Write(e.modifyTime[:]); err != nil {
			return newErr(ShortWrite, "prehash modify time write failed", 0)
		}
	}
	return nil
}

func prehashDir(d *Dirent, sink io.Writer, isRoot bool) error {
	if err := prehashMetadata(d, sink, isRoot); err != nil {
		return err
	}
	for _, child := range hashSortedChildren(d.Children) {
		if isRoot && isSignatureName(child.Name) {
			continue
		}
		if child.IsStream() {
			if err := prehashMetadata(child, sink, false); err != nil {
				return err
			}
		} else {
			if err := prehashDir(child, sink, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// ContentHash writes the MSI Authenticode content digest, covering stream
// bytes and storage CLSIDs, to sink. f supplies the underlying buffer so
// stream content can be read.
func ContentHash(f *File, root *Dirent, sink io.Writer) error {
	return contentHashDir(f, root, sink, true)
}

func contentHashDir(f *File, d *Dirent, sink io.Writer, isRoot bool) error {
	for _, child := range hashSortedChildren(d.Children) {
		if isRoot && isSignatureName(child.Name) {
			continue
		}
		if child.IsStream() {
			sz := child.e.size
			if sz == 0 {
				continue
			}
			buf := make([]byte, sz)
			n, err := f.ReadStream(child, 0, buf)
			if err != nil {
				return err
			}
			if uint64(n) != sz {
				return newErr(Corrupt, "short stream read during content hash", int64(sz))
			}
			if _, err := sink.Write(buf); err != nil {
				return newErr(ShortWrite, "content hash stream write failed", 0)
			}
		} else {
			if err := contentHashDir(f, child, sink, false); err != nil {
				return err
			}
		}
	}
	if _, err := sink.Write(d.e.clsid[:]); err != nil {
		return newErr(ShortWrite, "content hash clsid write failed", 0)
	}
	return nil
}
