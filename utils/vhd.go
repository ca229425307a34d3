package utils

import (
	"bytes"
	"encoding/binary"
	"time"

	uuid "github.com/gofrs/uuid"
)

// vhdHeader is the footer of a fixed VHD disk as laid out by the Virtual
// Hard Disk Image Format Specification. All integer fields are big endian.
type vhdHeader struct {
	Cookie             [8]byte
	Features           [4]byte
	FileFormatVersion  [4]byte
	DataOffset         [8]byte
	Timestamp          [4]byte
	CreatorApplication [4]byte
	CreatorVersion     [4]byte
	CreatorHostOS      [4]byte
	OriginalSize       [8]byte
	CurrentSize        [8]byte
	DiskGeometry       [4]byte
	DiskType           [4]byte
	Checksum           [4]byte
	UniqueID           [16]byte
	SavedState         [1]byte
	Reserved           [427]byte
}

// newVHDFixed builds the footer for a fixed VHD of the given virtual size.
func newVHDFixed(size uint64) vhdHeader {
	header := vhdHeader{}

	copy(header.Cookie[:], "conectix")
	binary.BigEndian.PutUint32(header.Features[:], 0x00000002)
	binary.BigEndian.PutUint32(header.FileFormatVersion[:], 0x00010000)
	// fixed disks have no data offset
	binary.BigEndian.PutUint64(header.DataOffset[:], 0xffffffffffffffff)
	// seconds since January 1st, 2000
	binary.BigEndian.PutUint32(header.Timestamp[:], uint32(time.Now().Unix()-946684800))
	copy(header.CreatorApplication[:], "sarc")
	binary.BigEndian.PutUint32(header.CreatorVersion[:], 0x00010000)
	copy(header.CreatorHostOS[:], "Lnux")
	binary.BigEndian.PutUint64(header.OriginalSize[:], size)
	binary.BigEndian.PutUint64(header.CurrentSize[:], size)

	cylinders, heads, sectorsPerTrack := chs(size / 512)
	binary.BigEndian.PutUint16(header.DiskGeometry[0:2], cylinders)
	header.DiskGeometry[2] = heads
	header.DiskGeometry[3] = sectorsPerTrack

	binary.BigEndian.PutUint32(header.DiskType[:], 2) // fixed disk

	id, _ := uuid.NewV4()
	copy(header.UniqueID[:], id.Bytes())

	binary.BigEndian.PutUint32(header.Checksum[:], vhdChecksum(header))

	return header
}

// chs computes the disk geometry for the given total sectors with the
// algorithm from the VHD specification appendix.
func chs(totalSectors uint64) (uint16, byte, byte) {
	var sectorsPerTrack, heads, cylinderTimesHeads uint64

	if totalSectors > 65535*16*255 {
		totalSectors = 65535 * 16 * 255
	}

	if totalSectors >= 65535*16*63 {
		sectorsPerTrack = 255
		heads = 16
		cylinderTimesHeads = totalSectors / sectorsPerTrack
	} else {
		sectorsPerTrack = 17
		cylinderTimesHeads = totalSectors / sectorsPerTrack

		heads = (cylinderTimesHeads + 1023) / 1024
		if heads < 4 {
			heads = 4
		}

		if cylinderTimesHeads >= heads*1024 || heads > 16 {
			sectorsPerTrack = 31
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}

		if cylinderTimesHeads >= heads*1024 {
			sectorsPerTrack = 63
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}
	}

	cylinders := cylinderTimesHeads / heads

	return uint16(cylinders), byte(heads), byte(sectorsPerTrack)
}

// vhdChecksum is the ones complement of the byte sum of the footer with
// the checksum field zeroed. The caller passes the header before setting
// the Checksum field.
func vhdChecksum(header vhdHeader) uint32 {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, header)

	var sum uint32
	for _, b := range buf.Bytes() {
		sum += uint32(b)
	}

	return ^sum
}
