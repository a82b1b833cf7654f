// Package stream composes chainable byte streams the way the original
// client nests FilteredInputStream<Filter> wrappers, but reshaped as
// explicit Go io.Reader/io.Writer decorators built with a small builder
// instead of C++-style nested templates.
package stream

import (
	stdbzip2 "compress/bzip2"
	"compress/zlib"
	"hash/crc32"
	"io"

	bz2 "github.com/dsnet/compress/bzip2"
)

// Limited wraps r so that reads never return more than n total bytes,
// surfacing io.EOF once the limit is reached — used to bound a segment
// read to its reserved byte range.
func Limited(r io.Reader, n int64) io.Reader {
	return io.LimitReader(r, n)
}

// CRC32Reader wraps r, accumulating a running CRC32 (IEEE) of everything
// read through it, for SFV cross-validation.
type CRC32Reader struct {
	r    io.Reader
	hash uint32
}

func NewCRC32Reader(r io.Reader) *CRC32Reader {
	return &CRC32Reader{r: r}
}

func (c *CRC32Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash = crc32.Update(c.hash, crc32.IEEETable, p[:n])
	}
	return n, err
}

func (c *CRC32Reader) Sum32() uint32 { return c.hash }

// BZ2Reader decompresses a bzip2 stream using the standard library
// (decompression only — see BZ2Writer on compress/bzip2's write-side gap).
func BZ2Reader(r io.Reader) io.Reader { return stdbzip2.NewReader(r) }

// BZ2Writer compresses to bzip2. The Go standard library cannot write
// bzip2 (compress/bzip2 is decode-only), so filelist generation
// uses github.com/dsnet/compress/bzip2, the ecosystem's bzip2 encoder.
func BZ2Writer(w io.Writer) (io.WriteCloser, error) {
	return bz2.NewWriter(w, &bz2.WriterConfig{Level: bz2.DefaultCompression})
}

// ZlibWriter/ZlibReader back the upload engine's optional small-file
// compression filter.
func ZlibWriter(w io.Writer) (io.WriteCloser, error) { return zlib.NewWriterLevel(w, zlib.BestSpeed) }
func ZlibReader(r io.Reader) (io.ReadCloser, error)  { return zlib.NewReader(r) }

// Chain composes a base reader with zero or more decorator functions, for
// readable pipeline construction: Chain(f, Limit(n)).
type Decorator func(io.Reader) io.Reader

func Chain(base io.Reader, decorators ...Decorator) io.Reader {
	r := base
	for _, d := range decorators {
		r = d(r)
	}
	return r
}

func Limit(n int64) Decorator {
	return func(r io.Reader) io.Reader { return io.LimitReader(r, n) }
}
