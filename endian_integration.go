// +build integration

package img2bag

import (
	"encoding/binary"
)

// Simulate a big endian middleware. Readers must honor the encapsulation header, so every
// round trip test has to pass under both builds.
var (
	endian        binary.ByteOrder = binary.BigEndian
	encapsulation                  = [4]byte{0x00, 0x00, 0x00, 0x00} // CDR_BE
)
