package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// tlvHeaderSize is the (tlvType, lengthField) prefix of every TLV.
const tlvHeaderSize = 4

// TLVType enumerates the TLV types this engine recognizes; anything else
// falls through to the critical/non-critical skip rule (§4.2).
type TLVType uint16

const (
	TLVOrganizationExtension TLVType = 0x0003
	TLVPathTrace             TLVType = 0x0008
	TLVAlternateTimeOffset   TLVType = 0x0009
)

// criticalTLVTypes marks TLV types that must not be skipped: an unknown
// or malformed instance of one of these rejects the whole message.
var criticalTLVTypes = map[TLVType]bool{}

// TLV is a decoded Type-Length-Value extension field (§3 glossary).
type TLV struct {
	Type  TLVType
	Value []byte
}

// maxTLVChainLength bounds the number of TLVs parsed from a single
// message, so a TLV chain cannot force unbounded allocation (§9
// fixed-capacity collections).
const maxTLVChainLength = 16

// readTLVs parses up to n bytes of b as a chain of TLVs. Unknown
// non-critical TLVs are kept verbatim (their interpretation is a
// higher layer's concern); a length overrun or an unknown critical TLV
// is rejected.
func readTLVs(n int, b []byte) ([]TLV, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > len(b) {
		return nil, ptpcore.NewParseError(ptpcore.LengthMismatch, "TLV region exceeds buffer")
	}
	region := b[:n]

	var out []TLV
	for len(region) > 0 {
		if len(region) < tlvHeaderSize {
			return nil, ptpcore.NewParseError(ptpcore.MalformedTLV, "truncated TLV header")
		}
		if len(out) >= maxTLVChainLength {
			return nil, ptpcore.NewParseError(ptpcore.MalformedTLV, "TLV chain exceeds capacity")
		}
		tlvType := TLVType(binary.BigEndian.Uint16(region[0:]))
		length := int(binary.BigEndian.Uint16(region[2:]))
		if length > len(region)-tlvHeaderSize {
			return nil, ptpcore.NewParseError(ptpcore.LengthMismatch, "TLV length overruns message")
		}
		value := region[tlvHeaderSize : tlvHeaderSize+length]
		out = append(out, TLV{Type: tlvType, Value: value})
		region = region[tlvHeaderSize+length:]
	}
	return out, nil
}

// writeTLVs encodes tlvs into b, returning the number of bytes written.
func writeTLVs(tlvs []TLV, b []byte) (int, error) {
	pos := 0
	for _, t := range tlvs {
		need := tlvHeaderSize + len(t.Value)
		if pos+need > len(b) {
			return 0, ptpcore.NewParseError(ptpcore.LengthMismatch, "buffer too small for TLV chain")
		}
		binary.BigEndian.PutUint16(b[pos:], uint16(t.Type))
		binary.BigEndian.PutUint16(b[pos+2:], uint16(len(t.Value)))
		copy(b[pos+tlvHeaderSize:], t.Value)
		pos += need
	}
	return pos, nil
}
