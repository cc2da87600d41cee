// Package wire implements the bit-exact codec of §4.2: the common PTP
// header, the event/general message bodies, and bounded TLV parsing. Byte
// layout follows IEEE 1588-2019 network-byte-order encoding, grounded on
// the teacher's offset-commented struct style (tcpinfo.go) rather than on
// reflection or a generic marshaler.
package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// MessageType is the low nibble of the first header octet (Table 35).
type MessageType uint8

const (
	Sync               MessageType = 0x0
	DelayReq           MessageType = 0x1
	PDelayReq          MessageType = 0x2
	PDelayResp         MessageType = 0x3
	FollowUp           MessageType = 0x8
	DelayResp          MessageType = 0x9
	PDelayRespFollowUp MessageType = 0xA
	Announce           MessageType = 0xB
	Signaling          MessageType = 0xC
	Management         MessageType = 0xD
)

func (t MessageType) String() string {
	switch t {
	case Sync:
		return "Sync"
	case DelayReq:
		return "Delay_Req"
	case PDelayReq:
		return "Pdelay_Req"
	case PDelayResp:
		return "Pdelay_Resp"
	case FollowUp:
		return "Follow_Up"
	case DelayResp:
		return "Delay_Resp"
	case PDelayRespFollowUp:
		return "Pdelay_Resp_Follow_Up"
	case Announce:
		return "Announce"
	case Signaling:
		return "Signaling"
	case Management:
		return "Management"
	default:
		return "Unknown"
	}
}

// Flag bits of the second header octet (Table 37), the ones this engine
// reads or sets.
const (
	FlagAlternateMaster uint16 = 1 << (8 + 0)
	FlagTwoStep         uint16 = 1 << (8 + 1)
	FlagUnicast         uint16 = 1 << (8 + 2)

	FlagLeap61                uint16 = 1 << 0
	FlagLeap59                uint16 = 1 << 1
	FlagCurrentUTCOffsetValid uint16 = 1 << 2
	FlagPTPTimescale          uint16 = 1 << 3
	FlagTimeTraceable         uint16 = 1 << 4
	FlagFrequencyTraceable    uint16 = 1 << 5
)

// HeaderSize is the fixed length of the common header in bytes (Table 35).
const HeaderSize = 34

// Header is the common PTP message header shared by every message type.
type Header struct {
	MessageType        MessageType
	Version            uint8 // packed major/minor nibbles; see version.go
	MessageLength      uint16
	DomainNumber       ptpcore.DomainNumber
	FlagField          uint16
	CorrectionField    int64 // signed, 2^-16 ns units (§4.2)
	SourcePortIdentity ptpcore.PortIdentity
	SequenceID         uint16
	ControlField       uint8
	LogMessageInterval int8
}

// marshalHeader writes the 34-byte common header to b[0:34].
func marshalHeader(h *Header, b []byte) {
	b[0] = byte(h.MessageType) & 0x0f
	b[1] = h.Version
	binary.BigEndian.PutUint16(b[2:], h.MessageLength)
	b[4] = uint8(h.DomainNumber)
	b[5] = 0 // reserved
	binary.BigEndian.PutUint16(b[6:], h.FlagField)
	binary.BigEndian.PutUint64(b[8:], uint64(h.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], 0) // reserved
	binary.BigEndian.PutUint64(b[20:], uint64(h.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], uint16(h.SourcePortIdentity.PortNumber))
	binary.BigEndian.PutUint16(b[30:], h.SequenceID)
	b[32] = h.ControlField
	b[33] = byte(h.LogMessageInterval)
}

// unmarshalHeader reads the common header from b[0:34]. The caller must
// have already checked len(b) >= HeaderSize.
func unmarshalHeader(h *Header, b []byte) {
	h.MessageType = MessageType(b[0] & 0x0f)
	h.Version = b[1]
	h.MessageLength = binary.BigEndian.Uint16(b[2:])
	h.DomainNumber = ptpcore.DomainNumber(b[4])
	h.FlagField = binary.BigEndian.Uint16(b[6:])
	h.CorrectionField = int64(binary.BigEndian.Uint64(b[8:]))
	h.SourcePortIdentity.ClockIdentity = ptpcore.ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	h.SourcePortIdentity.PortNumber = ptpcore.PortNumber(binary.BigEndian.Uint16(b[28:]))
	h.SequenceID = binary.BigEndian.Uint16(b[30:])
	h.ControlField = b[32]
	h.LogMessageInterval = int8(b[33])
}

// validateHeader runs the short-circuiting validation order of §4.2:
// length, version, message length against the slice, then domain.
func validateHeader(h *Header, b []byte, expectDomain ptpcore.DomainNumber) error {
	if len(b) < HeaderSize {
		return ptpcore.NewParseError(ptpcore.TooShort, "buffer shorter than common header")
	}
	if !VersionCompatible(h.Version) {
		return ptpcore.NewParseError(ptpcore.BadVersion, "unsupported PTP version nibble")
	}
	if int(h.MessageLength) > len(b) || int(h.MessageLength) < HeaderSize {
		return ptpcore.NewParseError(ptpcore.LengthMismatch, "messageLength inconsistent with buffer")
	}
	if h.DomainNumber != expectDomain {
		return ptpcore.NewParseError(ptpcore.BadDomain, "domain mismatch")
	}
	return nil
}
