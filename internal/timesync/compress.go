package timesync

import (
	"io"

	"github.com/golang/snappy"
	"google.golang.org/grpc/encoding"
)

// CompressorName is the grpc-encoding value for snappy framed payloads.
const CompressorName = "snappy"

func init() {
	encoding.RegisterCompressor(snappyCompressor{})
}

// snappyCompressor adapts the snappy framing format to grpc's compressor registry.
type snappyCompressor struct{}

func (snappyCompressor) Name() string { return CompressorName }

func (snappyCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return snappy.NewReader(r), nil
}
