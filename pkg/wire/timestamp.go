package wire

import (
	"encoding/binary"

	"github.com/openptp/ptpcore"
)

// timestampWireSize is the on-wire Timestamp layout (Table 5): 48-bit
// seconds, 32-bit nanoseconds.
const timestampWireSize = 10

func putTimestamp(b []byte, ts ptpcore.Timestamp) {
	var secBytes [8]byte
	binary.BigEndian.PutUint64(secBytes[:], ts.Seconds)
	copy(b[0:6], secBytes[2:8]) // low 48 bits only
	binary.BigEndian.PutUint32(b[6:10], ts.Nanoseconds)
}

func getTimestamp(b []byte) ptpcore.Timestamp {
	var secBytes [8]byte
	copy(secBytes[2:8], b[0:6])
	return ptpcore.Timestamp{
		Seconds:     binary.BigEndian.Uint64(secBytes[:]),
		Nanoseconds: binary.BigEndian.Uint32(b[6:10]),
	}
}
