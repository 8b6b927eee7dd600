package docdb

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Stored documents start with a header: uvarint flags, uvarint size of the
// uncompressed payload, then the (possibly compressed) payload.
const (
	valueFormatVer1      = 1
	valueFormatVerLatest = valueFormatVer1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0
	vfCompressionBit1
	vfJSON

	vfVerMask         = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1            = vfVerBit0
	vfCompressionMask = (vfCompressionBit0 | vfCompressionBit1)
	vfZstd            = vfCompressionBit0
	vfLZ4             = vfCompressionBit1
	vfSupportedMask   = (vfVer1 | vfCompressionMask | vfJSON)
	vfDefault         = vfVer1

	minValueSize = 2
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) encoding() encodingMethod {
	if vf&vfJSON != 0 {
		return JSON
	}
	return MsgPack
}

// Compression selects how stored documents are compressed.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// valueCodec encodes documents for the primary map.
type valueCodec struct {
	encoding    encodingMethod
	compression Compression
	threshold   int // payloads smaller than this are stored uncompressed
}

func (vc valueCodec) encode(d *Document) ([]byte, error) {
	raw, err := vc.encoding.encodeDocument(nil, d)
	if err != nil {
		return nil, err
	}

	flags := vfDefault
	if vc.encoding == JSON {
		flags |= vfJSON
	}
	payload := raw
	if vc.compression != CompressionNone && len(raw) >= vc.threshold {
		var compressed []byte
		var cflag valueFlags
		switch vc.compression {
		case CompressionZstd:
			compressed, cflag = compressZstd(raw), vfZstd
		case CompressionLZ4:
			compressed, cflag = compressLZ4(raw), vfLZ4
		}
		if compressed != nil && len(compressed) < len(raw) {
			payload = compressed
			flags |= cflag
		}
	}

	bb := bytesBuilder{make([]byte, 0, len(payload)+2*binary.MaxVarintLen64)}
	bb.AppendUvarint(uint64(flags))
	bb.AppendUvarint(uint64(len(raw)))
	_, _ = bb.Write(payload)
	return bb.Buf, nil
}

func decodeStoredDocument(data []byte) (*Document, error) {
	if len(data) < minValueSize {
		return nil, dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(data)
	v, err := d.Uvarint()
	if err != nil {
		return nil, dataErrf(data, d.Off(), err, "invalid value: bad flags")
	}
	flags := valueFlags(v)
	if (flags &^ vfSupportedMask) != 0 {
		return nil, dataErrf(data, d.Off(), nil, "invalid value: unsupported flags %x", v)
	}
	if flags.ver() != valueFormatVerLatest {
		return nil, dataErrf(data, d.Off(), nil, "invalid value: unsupported version %d", flags.ver())
	}
	rawSize, err := d.Uvarint()
	if err != nil {
		return nil, dataErrf(data, d.Off(), err, "invalid value: bad data size")
	}
	payload := d.Rest()

	var raw []byte
	switch flags & vfCompressionMask {
	case 0:
		raw = payload
	case vfZstd:
		raw, err = decompressZstd(payload, int(rawSize))
	case vfLZ4:
		raw, err = decompressLZ4(payload, int(rawSize))
	default:
		return nil, dataErrf(data, d.Off(), nil, "invalid value: bad compression flags %x", v)
	}
	if err != nil {
		return nil, dataErrf(data, d.Off(), err, "invalid value: cannot decompress")
	}
	if uint64(len(raw)) != rawSize {
		return nil, dataErrf(data, d.Off(), nil, "invalid value: got %d bytes of data, expected %d bytes", len(raw), rawSize)
	}
	return flags.encoding().decodeDocument(raw)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func compressZstd(data []byte) []byte {
	enc, _ := zstdEncoderPool.Get().(*zstd.Encoder)
	if enc == nil {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil
		}
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func decompressZstd(data []byte, size int) ([]byte, error) {
	dec, _ := zstdDecoderPool.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	defer zstdDecoderPool.Put(dec)
	return dec.DecodeAll(data, make([]byte, 0, size))
}

func compressLZ4(data []byte) []byte {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil || n == 0 {
		return nil
	}
	return buf[:n]
}

func decompressLZ4(data []byte, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
