package proxy

import (
	"context"
	"io"
	"net/http"
)

// streamReadBuffer is the size of the upstream read buffer. Chunk boundaries
// follow whatever the upstream read returns; SSE framing passes through
// untouched.
const streamReadBuffer = 32 * 1024

// relayStream copies the upstream response to the client as it arrives.
//
// A producer goroutine reads upstream chunks into a bounded channel; the
// calling goroutine drains it, writing and flushing each chunk eagerly. The
// channel's capacity is the only buffering: when the client is slow the
// channel fills and the upstream read blocks, which is the intended
// backpressure. Client disconnects cancel the upstream read via ctx; an
// upstream failure mid-stream closes the partial stream as-is.
func (f *Forwarder) relayStream(ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter, resp *http.Response) (int64, error) {
	copyProxyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	chunks := make(chan []byte, f.cfg.StreamBuffer)
	readErr := make(chan error, 1)

	go func() {
		defer close(chunks)
		buf := make([]byte, streamReadBuffer)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					readErr <- err
				}
				return
			}
		}
	}()

	var written int64
	for chunk := range chunks {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			cancel()
			for range chunks {
				// Drain so the producer can exit.
			}
			return written, &ClientDisconnectedError{Cause: err}
		}
		if canFlush {
			flusher.Flush()
		}
	}

	select {
	case err := <-readErr:
		return written, &UpstreamError{URL: resp.Request.URL.String(), Cause: err}
	default:
	}

	if err := ctx.Err(); err != nil {
		return written, &ClientDisconnectedError{Cause: err}
	}
	return written, nil
}
