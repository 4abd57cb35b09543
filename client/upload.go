// ABOUTME: Multipart file upload with progress reporting
// ABOUTME: Buffers the form body so the refresh-and-retry cycle can replay it

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
)

// Upload describes a multipart file upload. Fields are sent as stringified
// form values alongside the single "file" part. OnProgress, when set, is
// invoked with monotonically nondecreasing whole percentages from 0 to 100
// as the body goes out on the wire.
type Upload struct {
	FileName   string
	Content    io.Reader
	Fields     map[string]string
	OnProgress func(percent int)
}

// Upload posts a multipart/form-data body to path. The whole form is
// buffered up front: uploads stay replayable across a token refresh, and the
// total size is known so progress can be reported as a percentage.
func (c *Client) Upload(ctx context.Context, path string, up Upload, opts *Options) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range up.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %q: %w", name, err)
		}
	}

	part, err := w.CreateFormFile("file", up.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if up.Content != nil {
		if _, err := io.Copy(part, up.Content); err != nil {
			return nil, fmt.Errorf("failed to read upload content: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form body: %w", err)
	}

	req := Request{
		Method:      http.MethodPost,
		Path:        path,
		Opts:        deref(opts),
		rawBody:     buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	if up.OnProgress != nil {
		tracker := &progressTracker{
			total:      int64(buf.Len()),
			onProgress: up.OnProgress,
		}
		req.wrapBody = tracker.wrap
	}

	return c.Do(ctx, req)
}

// progressTracker converts bytes written to whole percentages. The high-water
// mark spans retry attempts, so a replayed body never reports a percentage
// lower than one already delivered.
type progressTracker struct {
	mu         sync.Mutex
	total      int64
	sent       int64
	highWater  int
	onProgress func(int)
}

func (t *progressTracker) wrap(r io.Reader) io.Reader {
	t.mu.Lock()
	t.sent = 0
	t.mu.Unlock()
	return &progressReader{r: r, tracker: t}
}

func (t *progressTracker) advance(n int64) {
	t.mu.Lock()
	t.sent += n
	percent := 100
	if t.total > 0 {
		percent = int(t.sent * 100 / t.total)
		if percent > 100 {
			percent = 100
		}
	}
	report := percent > t.highWater
	if report {
		t.highWater = percent
	}
	cb := t.onProgress
	t.mu.Unlock()

	if report && cb != nil {
		cb(percent)
	}
}

type progressReader struct {
	r       io.Reader
	tracker *progressTracker
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.tracker.advance(int64(n))
	}
	return n, err
}
