package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/utils"
	"github.com/containerd/containerd/archive"
	"github.com/containerd/containerd/archive/compression"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
)

// unpackImage pulls the image for the current platform, flattens its layers
// and applies the resulting tar stream onto the target root.
func unpackImage(ctx context.Context, c *config.Config, ref, targetRoot string) error {
	img, err := utils.GetImage(ref, utils.GetCurrentPlatform(), nil, nil)
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return fmt.Errorf("reading digest of %s: %w", ref, err)
	}
	c.Logger.Logger.Info().Str("image", ref).Str("digest", digest.String()).Msg("Applying image rootfs")

	reader := mutate.Extract(img)
	defer reader.Close()

	if _, err := archive.Apply(ctx, targetRoot, reader); err != nil {
		return fmt.Errorf("applying rootfs of %s: %w", ref, err)
	}
	return nil
}

// unpackTarball applies a local rootfs archive, decompressing transparently
// whatever it is compressed with.
func unpackTarball(ctx context.Context, c *config.Config, path, targetRoot string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	decompressed, err := compression.DecompressStream(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	defer decompressed.Close()

	c.Logger.Logger.Info().Str("tarball", path).Str("target", targetRoot).Msg("Applying rootfs tarball")
	if _, err := archive.Apply(ctx, targetRoot, decompressed); err != nil {
		return fmt.Errorf("applying %s: %w", path, err)
	}
	return nil
}
