package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lazypower/substream/internal/engine"
	"github.com/lazypower/substream/internal/micro"
	"github.com/lazypower/substream/internal/stream"
	"github.com/spf13/cobra"
)

var (
	runFormat    string
	runNoHistory bool
	runMicro     bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Cluster a point file and print the result",
	Long:  "Feed every point of a CSV or JSONL file through the engine in order, then run a final offline pass and print the clusters. Points without a timestamp are placed on the processing-speed clock.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "", "input format: csv or jsonl (default by extension)")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record the run in the history database")
	runCmd.Flags().BoolVar(&runMicro, "micro", false, "also print the micro-cluster pools")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := stream.ParseFormat(runFormat, args[0])
	if err != nil {
		return err
	}
	f, err := stream.Open(args[0], format)
	if err != nil {
		return err
	}
	defer f.Close()

	eng, err := engine.New(cfg.Clustering)
	if err != nil {
		return err
	}
	if !runNoHistory {
		db, path, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := eng.Attach(db, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  db: %s\n", path)
	}
	defer eng.Stop()

	st, err := feed(eng, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "  %d points, %d rejected, %d malformed, last tick %d\n", st.accepted, st.rejected, st.malformed, eng.Tick())

	snap, err := eng.Recluster()
	if err != nil {
		return fmt.Errorf("recluster: %w", err)
	}
	if runMicro {
		printMicro(cmd.OutOrStdout(), eng.MicroClustering())
	}
	printMacro(cmd.OutOrStdout(), snap)
	return nil
}

type feedStats struct {
	accepted  int
	rejected  int
	malformed int
}

// feed trains eng on every record of r. Malformed records and points the
// engine rejects are logged and skipped; any other error aborts.
func feed(eng *engine.Engine, r stream.Reader) (feedStats, error) {
	var st feedStats
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return st, nil
		}
		if errors.Is(err, stream.ErrMalformed) {
			log.Printf("run: %v", err)
			st.malformed++
			continue
		}
		if err != nil {
			return st, err
		}

		if rec.Timestamp != nil {
			err = eng.Train(rec.Values, *rec.Timestamp)
		} else {
			_, err = eng.Observe(rec.Values)
		}
		switch {
		case err == nil:
			st.accepted++
		case errors.Is(err, engine.ErrDimensionMismatch), errors.Is(err, engine.ErrInvalidPoint), errors.Is(err, micro.ErrInvalidTimestamp):
			log.Printf("run: line %d: %v", rec.Line, err)
			st.rejected++
		default:
			return st, fmt.Errorf("line %d: %w", rec.Line, err)
		}
	}
}

func printMacro(w io.Writer, snap *engine.MacroSnapshot) {
	fmt.Fprintf(w, "## Pass %d (%s) at tick %d\n\n", snap.Pass, snap.Mode, snap.Tick)
	if len(snap.Clusters) == 0 {
		fmt.Fprintln(w, "No clusters.")
	}
	for _, c := range snap.Clusters {
		fmt.Fprintf(w, "  cluster %d: weight %.3f, %d micro-clusters\n", c.ID, c.Weight, len(c.Members))
		fmt.Fprintf(w, "    center %s\n", formatVector(c.Center))
	}
	if len(snap.Noise) > 0 {
		fmt.Fprintf(w, "\n  noise: %d micro-clusters\n", len(snap.Noise))
	}
}

func printMicro(w io.Writer, snap engine.MicroSnapshot) {
	fmt.Fprintf(w, "## Micro-clusters at tick %d\n\n", snap.Tick)
	for _, pool := range [][]engine.MicroCluster{snap.Potential, snap.Outlier} {
		for _, mc := range pool {
			fmt.Fprintf(w, "  %s %d: weight %.3f, radius %.4f, %d relevant dims\n",
				mc.Pool, mc.ID, mc.Weight, mc.ProjectedRadius, mc.RelevantDims)
		}
	}
	fmt.Fprintln(w)
}

func formatVector(v []float64) string {
	const shown = 8
	s := "["
	for i, x := range v {
		if i == shown {
			s += fmt.Sprintf(" ... +%d", len(v)-shown)
			break
		}
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.4g", x)
	}
	return s + "]"
}
