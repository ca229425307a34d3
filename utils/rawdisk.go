package utils

import (
	"archive/tar"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
)

// Raw2Azure converts a raw disk to a VHD disk compatible with Azure.
// All VHDs on Azure must have a virtual size aligned to 1 MB and the
// Hyper-V VHDX format isn't supported, only fixed VHD.
func Raw2Azure(source string, logger types.SarchuraLogger) error {
	logger.Logger.Info().Str("source", source).Msg("Converting raw disk to Azure VHD")

	// Azure wants a .vhd suffix
	err := os.Rename(source, fmt.Sprintf("%s.vhd", source))
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error renaming raw image to vhd")
		return err
	}

	vhdFile, err := os.OpenFile(fmt.Sprintf("%s.vhd", source), os.O_APPEND|os.O_WRONLY, constants.FilePerm)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error opening vhd file")
		return err
	}

	info, err := vhdFile.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting file info")
		return err
	}
	actualSize := info.Size()

	// Round the virtual size up to the nearest MB. The 512 byte footer
	// is appended on top, so the virtual size stays aligned.
	finalSizeBytes := ((actualSize + constants.MiB - 1) / constants.MiB) * constants.MiB

	if actualSize != finalSizeBytes {
		logger.Logger.Info().Int64("actualSize", actualSize).Int64("finalSize", finalSizeBytes).Msg("Resizing image")
		// If you do not seek, you will override the data
		_, err = vhdFile.Seek(0, io.SeekEnd)
		if err != nil {
			logger.Logger.Error().Err(err).Str("source", source).Msg("Error seeking to end")
			return err
		}
		err = vhdFile.Truncate(finalSizeBytes)
		if err != nil {
			logger.Logger.Error().Err(err).Str("source", source).Msg("Error truncating file")
			return err
		}
	}

	// Stat again to get the new size and append the footer
	info, err = vhdFile.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting file info")
		return err
	}
	header := newVHDFixed(uint64(info.Size()))
	err = binary.Write(vhdFile, binary.BigEndian, header)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error writing header")
		return err
	}

	err = vhdFile.Close()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error closing file")
		return err
	}

	return nil
}

// Raw2Gce transforms an image from RAW format into GCE format.
// The RAW image file must have a size in an increment of 1 GB, the disk
// image filename must be disk.raw and the compressed file must be a
// .tar.gz that uses gzip compression with GNU tar headers.
func Raw2Gce(source string, sarchuraFs types.SarchuraFS, logger types.SarchuraLogger) error {
	logger.Logger.Info().Msg("Transforming raw image into gce format")

	actImg, err := sarchuraFs.OpenFile(source, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePerm)
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error opening file")
		return err
	}
	info, err := actImg.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error getting file info")
		return err
	}
	actualSize := info.Size()
	finalSizeGB := actualSize/constants.GiB + 1
	finalSizeBytes := finalSizeGB * constants.GiB
	logger.Logger.Info().Int64("current", actualSize).Int64("final", finalSizeGB).Str("file", source).Msg("Resizing image")
	// REMEMBER TO SEEK!
	_, err = actImg.Seek(0, io.SeekEnd)
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error seeking to end")
		return err
	}
	err = actImg.Truncate(finalSizeBytes)
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error truncating file")
		return err
	}
	err = actImg.Close()
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error closing file")
		return err
	}

	// Tar gz the image
	file, err := sarchuraFs.Create(fmt.Sprintf("%s.tar.gz", source))
	if err != nil {
		logger.Logger.Error().Err(err).Str("destination", fmt.Sprintf("%s.tar.gz", source)).Msg("Error creating destination file")
		return err
	}
	logger.Logger.Info().Str("destination", file.Name()).Msg("Compressing raw image into a tar.gz")

	defer func(file *os.File) {
		err = file.Close()
		if err != nil {
			logger.Logger.Error().Err(err).Str("destination", file.Name()).Msg("Error closing destination file")
		}
	}(file)

	gzipWriter, err := gzip.NewWriterLevel(file, gzip.BestSpeed)
	if err != nil {
		return err
	}
	defer func(gzipWriter *gzip.Writer) {
		err := gzipWriter.Close()
		if err != nil {
			logger.Logger.Error().Err(err).Str("destination", file.Name()).Msg("Error closing gzip writer")
		}
	}(gzipWriter)

	tarWriter := tar.NewWriter(gzipWriter)
	defer func(tarWriter *tar.Writer) {
		err = tarWriter.Close()
		if err != nil {
			logger.Logger.Error().Err(err).Str("destination", file.Name()).Msg("Error closing tar writer")
		}
	}(tarWriter)

	sourceFile, err := sarchuraFs.Open(source)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error opening source file")
		return err
	}
	sourceStat, err := sourceFile.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting source file info")
		return err
	}
	defer func(sourceFile fs.File) {
		err = sourceFile.Close()
		if err != nil {
			logger.Logger.Error().Err(err).Str("source", source).Msg("Error closing source file")
		}
	}(sourceFile)

	header := &tar.Header{
		Name:   sourceStat.Name(),
		Size:   sourceStat.Size(),
		Mode:   int64(sourceStat.Mode()),
		Format: tar.FormatGNU,
	}
	err = tarWriter.WriteHeader(header)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error writing header")
		return err
	}
	_, err = io.Copy(tarWriter, sourceFile)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error copying data")
		return err
	}

	// Remove the full raw image, we already got the compressed one
	err = sarchuraFs.RemoveAll(source)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error removing full raw image")
		return err
	}

	return nil
}
