package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/lazypower/substream/internal/store"
	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historySnapshot int64
)

var historyCmd = &cobra.Command{
	Use:   "history [runID]",
	Short: "Browse recorded runs and snapshots",
	Long:  "List recorded runs. With a run id, list its snapshots. With --snapshot, show the clusters of one snapshot.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs")
	historyCmd.Flags().Int64Var(&historySnapshot, "snapshot", 0, "show the clusters of this snapshot id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, _, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	w := cmd.OutOrStdout()
	switch {
	case historySnapshot > 0:
		return showSnapshot(w, db, historySnapshot)
	case len(args) > 0:
		return showRun(w, db, args[0])
	}
	return listRuns(w, db, historyLimit)
}

func listRuns(w io.Writer, db *store.DB, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintln(w, "## Runs")
	fmt.Fprintln(w)
	for _, r := range runs {
		status := "running"
		if r.FinishedAt != nil {
			status = "finished " + formatMillis(*r.FinishedAt)
		}
		fmt.Fprintf(w, "  %s  %s  %d points, %d dims  [%s]\n", r.ID, r.Source, r.Points, r.Dimensions, status)
	}
	return nil
}

func showRun(w io.Writer, db *store.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	snaps, err := db.ListSnapshots(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "## %s\n\n", run.ID)
	fmt.Fprintf(w, "  source: %s\n  started: %s\n  params: %s\n\n", run.Source, formatMillis(run.StartedAt), run.Params)
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots recorded.")
		return nil
	}
	for _, s := range snaps {
		fmt.Fprintf(w, "  #%d pass %d (%s) tick %d: %d clusters, %d noise\n",
			s.ID, s.Pass, s.Mode, s.Tick, s.ClusterCount, s.NoiseCount)
	}
	return nil
}

func showSnapshot(w io.Writer, db *store.DB, id int64) error {
	s, err := db.GetSnapshot(id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("snapshot %d not found", id)
	}
	clusters, err := db.GetSnapshotClusters(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "## Snapshot %d: run %s pass %d (%s) at tick %d\n\n", s.ID, s.RunID, s.Pass, s.Mode, s.Tick)
	for _, c := range clusters {
		fmt.Fprintf(w, "  cluster %d: weight %.3f, %d micro-clusters %v\n", c.ClusterID, c.Weight, c.Size, c.Members)
		fmt.Fprintf(w, "    center %s\n", formatVector(c.Center))
	}
	return nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}
