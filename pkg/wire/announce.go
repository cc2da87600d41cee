package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
)

// announceBodySize is the Announce body length per Table 43, excluding
// the common header and any trailing TLVs.
const announceBodySize = 30

// AnnounceMessage is a full Announce packet (Table 43): common header,
// body, plus zero or more TLVs.
type AnnounceMessage struct {
	Header
	OriginTimestamp         ptpcore.Timestamp
	CurrentUTCOffset        int16
	GrandmasterPriority1    uint8
	GrandmasterClockQuality dataset.ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ptpcore.ClockIdentity
	StepsRemoved            uint16
	TimeSource              dataset.TimeSource
	TLVs                    []TLV
}

// MarshalBinaryTo encodes the message into b, returning the number of
// bytes written.
func (m *AnnounceMessage) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < HeaderSize+announceBodySize {
		return 0, ptpcore.NewParseError(ptpcore.TooShort, "buffer too small for Announce")
	}
	marshalHeader(&m.Header, b)
	n := HeaderSize
	putTimestamp(b[n:], m.OriginTimestamp)
	binary.BigEndian.PutUint16(b[n+10:], uint16(m.CurrentUTCOffset))
	b[n+12] = 0 // reserved
	b[n+13] = m.GrandmasterPriority1
	b[n+14] = m.GrandmasterClockQuality.ClockClass
	b[n+15] = m.GrandmasterClockQuality.ClockAccuracy
	binary.BigEndian.PutUint16(b[n+16:], m.GrandmasterClockQuality.OffsetScaledLogVariance)
	b[n+18] = m.GrandmasterPriority2
	binary.BigEndian.PutUint64(b[n+19:], uint64(m.GrandmasterIdentity))
	binary.BigEndian.PutUint16(b[n+27:], m.StepsRemoved)
	b[n+29] = byte(m.TimeSource)
	pos := n + announceBodySize
	written, err := writeTLVs(m.TLVs, b[pos:])
	if err != nil {
		return 0, err
	}
	total := pos + written
	binary.BigEndian.PutUint16(b[2:], uint16(total))
	return total, nil
}

// unmarshalAnnounceBody decodes an Announce body from b, whose header must have
// already been validated by DecodeMessage.
func unmarshalAnnounceBody(m *AnnounceMessage, b []byte) error {
	if len(b) < announceBodySize {
		return ptpcore.NewParseError(ptpcore.TooShort, "Announce body truncated")
	}
	m.OriginTimestamp = getTimestamp(b)
	m.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[10:]))
	m.GrandmasterPriority1 = b[13]
	m.GrandmasterClockQuality.ClockClass = b[14]
	m.GrandmasterClockQuality.ClockAccuracy = b[15]
	m.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(b[16:])
	m.GrandmasterPriority2 = b[18]
	m.GrandmasterIdentity = ptpcore.ClockIdentity(binary.BigEndian.Uint64(b[19:]))
	m.StepsRemoved = binary.BigEndian.Uint16(b[27:])
	m.TimeSource = dataset.TimeSource(b[29])

	if m.StepsRemoved == 0xffff {
		return ptpcore.NewParseError(ptpcore.MalformedTLV, "steps_removed would overflow on increment")
	}

	rest := b[announceBodySize:]
	tlvLen := int(m.Header.MessageLength) - HeaderSize - announceBodySize
	tlvs, err := readTLVs(tlvLen, rest)
	if err != nil {
		return err
	}
	m.TLVs = tlvs
	return nil
}

// PriorityVector builds the dataset.PriorityVector this Announce carries,
// as BMCA requires for dataset comparison (§4.4).
func (m *AnnounceMessage) PriorityVector(receiver ptpcore.PortIdentity) dataset.PriorityVector {
	return dataset.PriorityVector{
		Priority1:            m.GrandmasterPriority1,
		ClockQuality:         m.GrandmasterClockQuality,
		Priority2:            m.GrandmasterPriority2,
		GrandmasterIdentity:  m.GrandmasterIdentity,
		StepsRemoved:         m.StepsRemoved,
		SenderPortIdentity:   m.Header.SourcePortIdentity,
		ReceiverPortIdentity: receiver,
	}
}
