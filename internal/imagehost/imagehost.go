// Package imagehost uploads optimized cover art somewhere the presence
// display can fetch it from, and returns the public URL.
package imagehost

import (
	"context"
	"errors"
)

var ErrUploadFailed = errors.New("imagehost: upload failed")

type Uploader interface {
	Name() string
	Upload(ctx context.Context, data []byte) (string, error)
}
