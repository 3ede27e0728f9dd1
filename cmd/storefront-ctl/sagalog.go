package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
)

var (
	sagaLogStatus string
	sagaLogLimit  int
)

var sagaLogCmd = &cobra.Command{
	Use:   "saga-log [saga-id]",
	Short: "Show the recorded transitions of refund sagas",
	Long: `With a saga id, prints every transition of that saga, oldest first. The
saga id is the refund claim shown by "reconcile".

With --status, lists sagas whose current status matches, newest first.

Examples:
  storefront-ctl saga-log 3f0c...
  storefront-ctl saga-log --status inconsistent`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSagaLog,
}

func init() {
	sagaLogCmd.Flags().StringVar(&sagaLogStatus, "status", "", "list sagas currently in this status")
	sagaLogCmd.Flags().IntVarP(&sagaLogLimit, "limit", "n", 50, "maximum sagas listed with --status")
}

func runSagaLog(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (sagaLogStatus != "") {
		return errors.New("pass either a saga id or --status")
	}
	var status sagalog.Status
	if sagaLogStatus != "" {
		st, ok := sagalog.ParseStatus(sagaLogStatus)
		if !ok {
			return fmt.Errorf("unknown saga status %q", sagaLogStatus)
		}
		status = st
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	if app.SagaReader == nil {
		return errors.New("saga log is disabled (saga_log_path is empty)")
	}

	var entries []*sagalog.SagaLog
	if status != "" {
		entries, err = app.SagaReader.ListByStatus(cmd.Context(), status, sagaLogLimit)
	} else {
		entries, err = app.SagaReader.ListBySaga(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no saga log entries")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSAGA\tSTATUS\tSTEP\tTRACE\tERRORS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.UpdatedAt.Format(time.RFC3339), e.SagaID, e.Status, e.CurrentStep, e.TraceID,
			strings.Join(e.Errors(), "; "))
	}
	return w.Flush()
}
