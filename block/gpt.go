package block

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Partition type GUIDs we care about, as GPT stores them.
const (
	ESPTypeGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	LVMTypeGUID = "E6D6D379-F507-44C2-A23C-238F2A3DF928"
)

// GPTPartition is one in-use entry of an on-disk GPT, read straight from
// the device without any external tool.
type GPTPartition struct {
	Number     int
	Name       string
	TypeGUID   string
	UUID       string
	FirstLBA   uint64
	LastLBA    uint64
	NumSectors uint64
}

// StartByte is the byte offset the partition begins at.
func (p GPTPartition) StartByte() uint64 { return p.FirstLBA * sectorSize }

// EndByte is the byte offset just past the partition.
func (p GPTPartition) EndByte() uint64 { return (p.LastLBA + 1) * sectorSize }

// GetGPTPartitions reads the GPT header at LBA 1 and returns the in-use
// partition entries. This is how we verify what the kernel and the tools
// agree on after writing a table.
func GetGPTPartitions(devicePath string) ([]GPTPartition, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}
	defer f.Close()

	// Read GPT header at sector 1
	hdrBuf := make([]byte, sectorSize)
	if _, err := f.ReadAt(hdrBuf, sectorSize); err != nil {
		return nil, fmt.Errorf("reading GPT header: %w", err)
	}

	if string(hdrBuf[0:8]) != "EFI PART" {
		return nil, fmt.Errorf("%s carries no GPT signature", devicePath)
	}

	partitionEntryLBA := binary.LittleEndian.Uint64(hdrBuf[72:80])
	numPartitionEntries := binary.LittleEndian.Uint32(hdrBuf[80:84])
	sizeOfPartitionEntry := binary.LittleEndian.Uint32(hdrBuf[84:88])

	partitions := []GPTPartition{}
	entryBuf := make([]byte, sizeOfPartitionEntry)

	for i := uint32(0); i < numPartitionEntries; i++ {
		offset := int64(partitionEntryLBA*sectorSize) + int64(i*sizeOfPartitionEntry)
		if _, err := f.ReadAt(entryBuf, offset); err != nil {
			return nil, fmt.Errorf("reading partition entry %d: %w", i+1, err)
		}

		firstLBA := binary.LittleEndian.Uint64(entryBuf[32:40])
		lastLBA := binary.LittleEndian.Uint64(entryBuf[40:48])

		if firstLBA == 0 && lastLBA == 0 {
			continue // Empty partition entry
		}

		partitions = append(partitions, GPTPartition{
			Number:     int(i + 1),
			Name:       decodeUTF16String(entryBuf[56 : 56+72]),
			TypeGUID:   decodeGUID(entryBuf[0:16]),
			UUID:       decodeGUID(entryBuf[16:32]),
			FirstLBA:   firstLBA,
			LastLBA:    lastLBA,
			NumSectors: lastLBA - firstLBA + 1,
		})
	}

	return partitions, nil
}

// decodeGUID renders the mixed-endian on-disk GUID in the canonical
// uppercase text form.
func decodeGUID(b []byte) string {
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}

// Helper to decode UTF-16LE partition names
func decodeUTF16String(b []byte) string {
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		ch := binary.LittleEndian.Uint16(b[i : i+2])
		if ch == 0x0000 {
			break
		}
		u16 = append(u16, ch)
	}
	r := make([]rune, len(u16))
	for i, u := range u16 {
		r[i] = rune(u)
	}
	return string(r)
}
