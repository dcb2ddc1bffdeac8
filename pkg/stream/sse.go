package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// SSESource reads a text/event-stream endpoint.
type SSESource struct {
	URL       string
	Client    *http.Client
	UserAgent string
}

// Dial issues the GET request and returns once response headers arrive.
func (s *SSESource) Dial(ctx context.Context) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	return newSSEConn(resp.Body), nil
}

type sseConn struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func newSSEConn(body io.ReadCloser) *sseConn {
	return &sseConn{body: body, r: bufio.NewReader(body)}
}

var dataField = []byte("data:")

// Next returns the data of the next event. Multi-line data is joined with
// newlines; comments and other fields are skipped.
func (c *sseConn) Next() ([]byte, error) {
	var data [][]byte

	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 && len(data) > 0 && err == nil {
			return bytes.Join(data, []byte("\n")), nil
		}

		if bytes.HasPrefix(line, dataField) {
			v := line[len(dataField):]
			v = bytes.TrimPrefix(v, []byte(" "))
			data = append(data, append([]byte(nil), v...))
		}

		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}

			return nil, err
		}
	}
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
