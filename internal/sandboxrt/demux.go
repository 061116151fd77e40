package sandboxrt

import (
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

// demux splits a Docker multiplexed log stream (the 8-byte-header
// framing used when the container was created without a TTY) into
// separate stdout and stderr writers.
func demux(stdout, stderr io.Writer, src io.Reader) (int64, error) {
	return stdcopy.StdCopy(stdout, stderr, src)
}
