package mocks

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
)

const sectorSize = 512

// GPTEntry describes one partition to place into a crafted GPT image.
type GPTEntry struct {
	TypeGUID string
	UUID     string
	Name     string
	FirstLBA uint64
	LastLBA  uint64
}

// WriteGPTImage writes a minimal but structurally valid GPT to the given
// path: protective sector, header at LBA 1 and the entry array at LBA 2.
// Scans that only read the table treat the file like a real device.
func WriteGPTImage(path string, entries []GPTEntry) error {
	const (
		entryLBA   = 2
		entrySize  = 128
		numEntries = 128
	)

	image := make([]byte, (entryLBA+numEntries*entrySize/sectorSize+1)*sectorSize)

	header := image[sectorSize : 2*sectorSize]
	copy(header[0:8], "EFI PART")
	binary.LittleEndian.PutUint64(header[72:80], entryLBA)
	binary.LittleEndian.PutUint32(header[80:84], numEntries)
	binary.LittleEndian.PutUint32(header[84:88], entrySize)

	for i, e := range entries {
		entry := image[entryLBA*sectorSize+i*entrySize : entryLBA*sectorSize+(i+1)*entrySize]
		copy(entry[0:16], encodeGUID(e.TypeGUID))
		copy(entry[16:32], encodeGUID(e.UUID))
		binary.LittleEndian.PutUint64(entry[32:40], e.FirstLBA)
		binary.LittleEndian.PutUint64(entry[40:48], e.LastLBA)
		for n, r := range e.Name {
			if 56+n*2+2 > entrySize {
				break
			}
			binary.LittleEndian.PutUint16(entry[56+n*2:56+n*2+2], uint16(r))
		}
	}

	return os.WriteFile(path, image, 0644)
}

// encodeGUID packs a canonical GUID string into the mixed-endian on-disk
// layout, the first three groups little-endian and the rest verbatim.
func encodeGUID(guid string) []byte {
	out := make([]byte, 16)
	parts := strings.Split(guid, "-")
	if len(parts) != 5 {
		return out
	}

	u32, _ := strconv.ParseUint(parts[0], 16, 32)
	binary.LittleEndian.PutUint32(out[0:4], uint32(u32))
	u16, _ := strconv.ParseUint(parts[1], 16, 16)
	binary.LittleEndian.PutUint16(out[4:6], uint16(u16))
	u16, _ = strconv.ParseUint(parts[2], 16, 16)
	binary.LittleEndian.PutUint16(out[6:8], uint16(u16))

	rest, _ := hex.DecodeString(parts[3] + parts[4])
	copy(out[8:], rest)
	return out
}
