package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/lazypower/substream/internal/client"
	"github.com/lazypower/substream/internal/stream"
	"github.com/spf13/cobra"
)

var (
	pushFormat string
	pushURL    string
	pushBatch  int
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Stream a point file into a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushFormat, "format", "", "input format: csv or jsonl (default by extension)")
	pushCmd.Flags().StringVar(&pushURL, "url", "", "server URL (default $SUBSTREAM_URL or http://127.0.0.1:37777)")
	pushCmd.Flags().IntVarP(&pushBatch, "batch", "n", 500, "points per request")
}

func runPush(cmd *cobra.Command, args []string) error {
	format, err := stream.ParseFormat(pushFormat, args[0])
	if err != nil {
		return err
	}
	f, err := stream.Open(args[0], format)
	if err != nil {
		return err
	}
	defer f.Close()

	c := client.New(pushURL)
	if !c.Healthy() {
		return fmt.Errorf("server not reachable at %s", c.URL())
	}

	p := &pusher{client: c, size: pushBatch}
	if p.size < 1 {
		p.size = 1
	}
	if err := p.run(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "pushed %d points to %s (%d rejected, %d malformed)\n", p.sent, c.URL(), p.rejected, p.malformed)
	return nil
}

// pusher groups consecutive records sharing a timestamp into batches, since
// one request carries at most one timestamp.
type pusher struct {
	client *client.Client
	size   int

	batch [][]float64
	ts    *uint64

	sent      int
	rejected  int
	malformed int
}

func (p *pusher) run(r stream.Reader) error {
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return p.flush()
		}
		if errors.Is(err, stream.ErrMalformed) {
			log.Printf("push: %v", err)
			p.malformed++
			continue
		}
		if err != nil {
			return err
		}

		if len(p.batch) > 0 && (len(p.batch) >= p.size || !sameTimestamp(p.ts, rec.Timestamp)) {
			if err := p.flush(); err != nil {
				return err
			}
		}
		p.ts = rec.Timestamp
		p.batch = append(p.batch, rec.Values)
	}
}

// flush sends the batch. A point the server rejects is dropped and the rest
// of the batch is resent.
func (p *pusher) flush() error {
	pending := p.batch
	for len(pending) > 0 {
		resp, err := p.client.PushPoints(pending, p.ts)
		var se *client.StatusError
		switch {
		case err == nil:
			p.sent += resp.Accepted
			pending = nil
		case errors.As(err, &se) && resp != nil && (se.Code == http.StatusBadRequest || se.Code == http.StatusConflict) && resp.Error != "":
			p.sent += resp.Accepted
			p.rejected++
			log.Printf("push: point dropped: %s", resp.Error)
			pending = pending[resp.Accepted+1:]
		default:
			return err
		}
	}
	p.batch = p.batch[:0]
	return nil
}

func sameTimestamp(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
