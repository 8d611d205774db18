package tools

import "io"

// DrainAndClose consumes the rest of an HTTP response body before closing it
// so the underlying connection can be reused.
func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
