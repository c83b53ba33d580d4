// Package codec defines the fixed-size binary records carried inside the
// UDP payload of every market-data and order frame. Records are
// little-endian, fixed layout, and end with a CRC32-C over everything
// before the checksum field. Nothing here allocates on the decode path.
package codec

import "hash/crc32"

// RecordVersion is the current record layout version.
const RecordVersion uint16 = 1

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(body []byte) uint32 {
	return crc32.Checksum(body, crcTable)
}
