package commands

import (
	"supplierbot/internal/queue"
	"supplierbot/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	jobsCmd.AddCommand(jobsCountsCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspects the job queue.",
}

var jobsCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Lists the amount of jobs per status.",
	Run: func(cmd *cobra.Command, args []string) {
		db, q := openQueue(loadConfig())
		defer db.Close()

		counts, err := q.Counts(cmd.Context())
		if err != nil {
			serviceutil.Fatal("count jobs", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Status", "Jobs"})
		for _, status := range []queue.Status{
			queue.STATUS_QUEUED,
			queue.STATUS_RUNNING,
			queue.STATUS_DONE,
			queue.STATUS_FAILED,
		} {
			t.AppendRow(table.Row{status, counts[status]})
		}
		t.Render()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job id>",
	Short: "Shows the state and result of a job.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, q := openQueue(loadConfig())
		defer db.Close()

		job, err := q.Get(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("get job", err)
		}
		t := newTable()
		t.AppendRows([]table.Row{
			{"ID", job.ID},
			{"Queue", job.Queue},
			{"Status", job.Status},
			{"Attempts", job.Attempts},
			{"Enqueued", job.EnqueuedAt.Format("2006-01-02 15:04:05")},
			{"Updated", job.UpdatedAt.Format("2006-01-02 15:04:05")},
			{"Result", string(job.Result)},
			{"Error", job.Error},
		})
		t.Render()
	},
}
