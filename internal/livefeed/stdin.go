package livefeed

import (
	"context"
	"io"
	"os"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// ConsumeStdin feeds records piped into the process, e.g.
// `tail -f app.ndjson | logdeck --stdin`. It returns when stdin is closed.
func (f *Feed) ConsumeStdin(ctx context.Context) error {
	return f.Consume(ctx, "stdin", stdin)
}
