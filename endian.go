// +build !integration

package img2bag

import (
	"encoding/binary"
)

// CDR payloads are written little endian, the byte order every ROS 2 middleware on x86 and
// ARM produces.
var (
	endian        binary.ByteOrder = binary.LittleEndian
	encapsulation                  = [4]byte{0x00, 0x01, 0x00, 0x00} // CDR_LE
)
