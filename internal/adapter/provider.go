package adapter

import (
	"context"
	"io"
)

// StorageProvider defines how to get a DriveService for a specific user.
type StorageProvider interface {
	// GetAdapter returns a DriveService for the given user ID.
	GetAdapter(ctx context.Context, userID string) (DriveService, error)
}

// progressReader reports cumulative bytes read from r.
type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress ProgressFunc
}

// NewProgressReader wraps r so that every read reports progress against total.
// A nil progress returns r unchanged.
func NewProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.progress(p.sent, p.total)
	}
	return n, err
}
