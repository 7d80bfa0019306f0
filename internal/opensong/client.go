// Package opensong implements a client for the OpenSong remote-control API:
// the REST slide endpoint and the XML status frames delivered over its
// websocket channel.
package opensong

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxSlideXMLSize bounds the decoded response body. Slide documents are a
// few KB in practice.
const maxSlideXMLSize = 4 * 1024 * 1024

// Client talks to the OpenSong REST API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given base URL, e.g. "http://10.0.0.5:8082".
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Slide fetches the content document for one slide.
func (c *Client) Slide(ctx context.Context, id int) (*SlideDocument, error) {
	op := fmt.Sprintf("slide %d", id)
	u := fmt.Sprintf("%s/presentation/slide/%d", c.base, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &APIError{
			Sentinel:  ErrBadStatus,
			Operation: op,
			Status:    res.StatusCode,
			Body:      strings.TrimSpace(string(body)),
		}
	}

	doc, err := DecodeSlideDocument(io.LimitReader(res.Body, maxSlideXMLSize))
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return doc, nil
}

// CloseIdle drops pooled connections. Called when the presentation stops, so
// a stale connection is never reused against a remote that is tearing down.
func (c *Client) CloseIdle() {
	c.http.CloseIdleConnections()
}
