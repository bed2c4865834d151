package gdi

import (
	"encoding/binary"
	"fmt"
)

var le = binary.LittleEndian

const (
	emrHeader     = 1
	emrEOF        = 14
	emrGDIComment = 70

	emfSignature  = 0x464d4520 // " EMF"
	emfHeaderSize = 88

	wmfHeaderSize = 18
	metaEOF       = 0x0000
	metaEscape    = 0x0626
	mfComment     = 15
	wmfcSignature = 0x43464d57 // "WMFC"
	wmfChunk      = 0x2000
)

type emfHeader struct {
	frame   Rect
	bytes   uint32
	records uint32
}

func parseEMFHeader(bits []byte) (emfHeader, error) {
	if len(bits) < emfHeaderSize {
		return emfHeader{}, fmt.Errorf("%w: %d bytes, need %d", ErrBadMetafile, len(bits), emfHeaderSize)
	}
	if le.Uint32(bits[0:]) != emrHeader || le.Uint32(bits[40:]) != emfSignature {
		return emfHeader{}, fmt.Errorf("%w: missing EMF header", ErrBadMetafile)
	}
	h := emfHeader{
		frame: Rect{
			Left:   int32(le.Uint32(bits[24:])),
			Top:    int32(le.Uint32(bits[28:])),
			Right:  int32(le.Uint32(bits[32:])),
			Bottom: int32(le.Uint32(bits[36:])),
		},
		bytes:   le.Uint32(bits[48:]),
		records: le.Uint32(bits[52:]),
	}
	if h.bytes > uint32(len(bits)) {
		return emfHeader{}, fmt.Errorf("%w: header claims %d bytes, have %d", ErrBadMetafile, h.bytes, len(bits))
	}
	return h, nil
}

// NewEnhMetaFileBits builds a minimal EMF stream: a header with the given
// frame, one GDI comment record carrying payload (omitted when empty), and an
// end-of-file record.
func NewEnhMetaFileBits(frame Rect, payload []byte) []byte {
	records := uint32(2)
	body := 0
	if len(payload) > 0 {
		records++
		body = 12 + pad(len(payload), 4)
	}
	total := emfHeaderSize + body + 20
	out := make([]byte, total)

	le.PutUint32(out[0:], emrHeader)
	le.PutUint32(out[4:], emfHeaderSize)
	le.PutUint32(out[8:], uint32(frame.Left))
	le.PutUint32(out[12:], uint32(frame.Top))
	le.PutUint32(out[16:], uint32(frame.Right))
	le.PutUint32(out[20:], uint32(frame.Bottom))
	le.PutUint32(out[24:], uint32(frame.Left))
	le.PutUint32(out[28:], uint32(frame.Top))
	le.PutUint32(out[32:], uint32(frame.Right))
	le.PutUint32(out[36:], uint32(frame.Bottom))
	le.PutUint32(out[40:], emfSignature)
	le.PutUint32(out[44:], 0x10000)
	le.PutUint32(out[48:], uint32(total))
	le.PutUint32(out[52:], records)

	off := emfHeaderSize
	if len(payload) > 0 {
		le.PutUint32(out[off:], emrGDIComment)
		le.PutUint32(out[off+4:], uint32(body))
		le.PutUint32(out[off+8:], uint32(len(payload)))
		copy(out[off+12:], payload)
		off += body
	}

	le.PutUint32(out[off:], emrEOF)
	le.PutUint32(out[off+4:], 20)
	le.PutUint32(out[off+12:], 16)
	le.PutUint32(out[off+16:], 20)
	return out
}

// wrapWMF carries classic metafile bits inside a new EMF.
func wrapWMF(wmf []byte, frame Rect) []byte {
	return NewEnhMetaFileBits(frame, wmf)
}

// embedEMF builds a WMF stream whose comment escapes carry emf in chunks.
func embedEMF(emf []byte) []byte {
	out := make([]byte, wmfHeaderSize, wmfHeaderSize+len(emf)+64)
	var maxRecord uint32 = 3
	for off := 0; off < len(emf); off += wmfChunk {
		end := min(off+wmfChunk, len(emf))
		chunk := emf[off:end]
		data := 8 + len(chunk)
		recBytes := 10 + pad(data, 2)
		rec := make([]byte, recBytes)
		le.PutUint32(rec[0:], uint32(recBytes/2))
		le.PutUint16(rec[4:], metaEscape)
		le.PutUint16(rec[6:], mfComment)
		le.PutUint16(rec[8:], uint16(data))
		le.PutUint32(rec[10:], wmfcSignature)
		le.PutUint32(rec[14:], uint32(len(chunk)))
		copy(rec[18:], chunk)
		out = append(out, rec...)
		maxRecord = max(maxRecord, uint32(recBytes/2))
	}
	out = append(out, 3, 0, 0, 0, 0, 0) // META_EOF

	le.PutUint16(out[0:], 1)
	le.PutUint16(out[2:], 9)
	le.PutUint16(out[4:], 0x300)
	le.PutUint32(out[6:], uint32(len(out)/2))
	le.PutUint16(out[10:], 0)
	le.PutUint32(out[12:], maxRecord)
	le.PutUint16(out[16:], 0)
	return out
}

// extractEMF reassembles an EMF embedded by embedEMF.
func extractEMF(wmf []byte) ([]byte, bool) {
	if len(wmf) < wmfHeaderSize || le.Uint16(wmf[2:]) != 9 {
		return nil, false
	}
	var emf []byte
	off := wmfHeaderSize
	for off+6 <= len(wmf) {
		size := int(le.Uint32(wmf[off:])) * 2
		fn := le.Uint16(wmf[off+4:])
		if fn == metaEOF {
			break
		}
		if size < 6 || off+size > len(wmf) {
			return nil, false
		}
		if fn == metaEscape && size >= 18 &&
			le.Uint16(wmf[off+6:]) == mfComment &&
			le.Uint32(wmf[off+10:]) == wmfcSignature {
			n := int(le.Uint32(wmf[off+14:]))
			if 18+n > size {
				return nil, false
			}
			emf = append(emf, wmf[off+18:off+18+n]...)
		}
		off += size
	}
	if len(emf) == 0 {
		return nil, false
	}
	if _, err := parseEMFHeader(emf); err != nil {
		return nil, false
	}
	return emf, true
}

func pad(n, to int) int {
	return (n + to - 1) / to * to
}
