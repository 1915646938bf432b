package cfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRoundTripsAnEmptyContainer(t *testing.T) {
	root := newRootDirent()
	f := newSeedFile(512)

	var out bytes.Buffer
	require.NoError(t, Write(f, root, nil, nil, &out))

	reopened, err := Open(out.Bytes())
	require.NoError(t, err)
	require.NotNil(t, reopened.Root())
	require.Equal(t, typeRoot, reopened.Root().Type)
	require.Empty(t, reopened.Root().Children)
}

func TestOpenRejectsTruncatedBuffer(t *testing.T) {
	_, err := Open(make([]byte, 4))
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, TooSmall, e.Kind())
}

func TestOpenRejectsBufferShorterThanThreeSectors(t *testing.T) {
	// A valid 512-byte header with majorVersion 4 implies a 4096-byte
	// sector, so the true minimum buffer length is 3*4096 = 12288. A
	// buffer that only satisfies the flat 512-byte header-size floor must
	// still be rejected, with TooSmall rather than whatever incidental
	// error a short directory-sector read would otherwise produce.
	b := blankHeaderBytes(4)
	require.Less(t, len(b), 3*4096)

	_, err := Open(b)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, TooSmall, e.Kind())
}

func TestOpenRoundTripsAnExistingStream(t *testing.T) {
	// A payload at or above miniStreamCutoff forces both this source file's
	// own ReadStream and the rewrite's streamHandle onto the large-stream
	// path, which is what streamFixture's FAT chain actually describes.
	payload := bytes.Repeat([]byte("xyz-"), 2000)
	f, stream := streamFixture(t, payload)
	root := newRootDirent()
	root.Children = append(root.Children, stream)

	var out bytes.Buffer
	require.NoError(t, Write(f, root, nil, nil, &out))

	reopened, err := Open(out.Bytes())
	require.NoError(t, err)
	require.Len(t, reopened.Root().Children, 1)
	gotStream := reopened.Root().Children[0]
	require.Equal(t, "BigStream", gotStream.Name)

	buf := make([]byte, gotStream.Size())
	n, err := reopened.ReadStream(gotStream, 0, buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(buf[:n], payload))
}
