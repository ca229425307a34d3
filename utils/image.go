package utils

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// GetImage resolves the given reference against its registry and returns
// the image for the wanted platform. When no platform is given, the
// current one is used. Plain or basic auth can be passed, otherwise the
// default docker keychain applies.
func GetImage(targetImage, targetPlatform string, auth *authn.Basic, t http.RoundTripper) (v1.Image, error) {
	var platform *v1.Platform
	var image v1.Image
	var err error

	if targetPlatform != "" {
		platform, err = v1.ParsePlatform(targetPlatform)
		if err != nil {
			return image, err
		}
	} else {
		platform, err = v1.ParsePlatform(GetCurrentPlatform())
		if err != nil {
			return image, err
		}
	}

	ref, err := name.ParseReference(targetImage)
	if err != nil {
		return image, err
	}

	opts := []remote.Option{
		remote.WithPlatform(*platform),
	}

	if t != nil {
		tr := transport.NewRetry(t)
		opts = append(opts, remote.WithTransport(tr))
	}

	if auth != nil {
		opts = append(opts, remote.WithAuth(auth))
	} else {
		opts = append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	}

	image, err = remote.Image(ref, opts...)
	if err != nil {
		return image, err
	}

	return image, nil
}

// GetCurrentPlatform returns the current platform in a docker-style format.
func GetCurrentPlatform() string {
	return fmt.Sprintf("linux/%s", runtime.GOARCH)
}
