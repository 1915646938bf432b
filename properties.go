package cfb

import (
	"bytes"

	"github.com/richardlehane/msoleps"
)

// summaryInformationName is the well-known OLE property-set stream every
// MSI carries, holding installer metadata such as title, author and
// revision number.
const summaryInformationName = "\x05SummaryInformation"

// SummaryInformation decodes root's SummaryInformation stream, when present,
// into a flat map of property name to its string representation. It is a
// diagnostic convenience built on top of the container's own stream
// reading, not part of the hashing or rewrite contract: nothing in
// Prehash, ContentHash or Write calls it, and a container missing the
// stream is not an error.
func SummaryInformation(f *File, root *Dirent) (map[string]string, error) {
	var stream *Dirent
	for _, child := range root.Children {
		if child.IsStream() && child.Name == summaryInformationName {
			stream = child
			break
		}
	}
	if stream == nil {
		return nil, nil
	}

	buf := make([]byte, stream.Size())
	n, err := f.ReadStream(stream, 0, buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]

	doc, err := msoleps.New(bytes.NewReader(buf))
	if err != nil {
		return nil, newErr(Corrupt, "failed to parse SummaryInformation property set", int64(len(buf)))
	}

	out := make(map[string]string)
	for _, ps := range doc.Property_sets {
		for _, prop := range ps.Properties {
			if prop.Name == "" {
				continue
			}
			out[prop.Name] = prop.String()
		}
	}
	return out, nil
}
