package types

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	retry "github.com/avast/retry-go"
)

// HTTPClient downloads a URL to a local destination. Used for remote config
// fragments and file sources.
type HTTPClient interface {
	GetURL(log SarchuraLogger, url string, destination string) error
}

// RealHTTPClient fetches over plain net/http with a few retries, installer
// environments tend to race their network setup.
type RealHTTPClient struct {
	Timeout time.Duration
}

func NewHTTPClient() *RealHTTPClient {
	return &RealHTTPClient{Timeout: 60 * time.Second}
}

func (c *RealHTTPClient) GetURL(log SarchuraLogger, url string, destination string) error {
	client := &http.Client{Timeout: c.Timeout}
	return retry.Do(
		func() error {
			resp, err := client.Get(url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetching %s returned %s", url, resp.Status)
			}
			f, err := os.Create(destination)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(f, resp.Body)
			return err
		},
		retry.Delay(time.Second),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			log.Logger.Debug().Uint("attempt", n).Err(err).Str("url", url).Msg("Retrying download")
		}),
	)
}
