package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// followUpBodySize is the Follow_Up body length (Table 45).
const followUpBodySize = timestampWireSize

// FollowUpMessage carries the precise t1 for a preceding two-step Sync
// (Table 45), correlated by SequenceID (§4.3).
type FollowUpMessage struct {
	Header
	PreciseOriginTimestamp ptpcore.Timestamp
}

func (m *FollowUpMessage) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < HeaderSize+followUpBodySize {
		return 0, ptpcore.NewParseError(ptpcore.TooShort, "buffer too small for Follow_Up")
	}
	marshalHeader(&m.Header, b)
	n := HeaderSize
	putTimestamp(b[n:], m.PreciseOriginTimestamp)
	total := n + followUpBodySize
	binary.BigEndian.PutUint16(b[2:], uint16(total))
	return total, nil
}

func unmarshalFollowUpBody(m *FollowUpMessage, b []byte) error {
	if len(b) < followUpBodySize {
		return ptpcore.NewParseError(ptpcore.TooShort, "Follow_Up body truncated")
	}
	m.PreciseOriginTimestamp = getTimestamp(b)
	return nil
}
