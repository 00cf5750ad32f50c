package vision

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
	"github.com/teslashibe/go-pupper/pkg/perception"
)

// SnapshotSource fetches single JPEG frames from a camera snapshot URL,
// e.g. an mjpg-streamer "?action=snapshot" endpoint.
type SnapshotSource struct {
	URL    string
	Client *http.Client
}

var _ perception.FrameSource = (*SnapshotSource)(nil)

// NewSnapshotSource creates a source with a short per-frame timeout.
func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{URL: url, Client: httpc.NewClient(3 * time.Second)}
}

// Frame returns the current frame.
func (s *SnapshotSource) Frame(ctx context.Context) ([]byte, error) {
	data, err := httpc.Get(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty snapshot")
	}
	return data, nil
}
