package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/cmd/common"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	"github.com/mpapenbr/timing-service-go/pkg/model"
)

var (
	sessionKey int
	output     string
	jsonPath   string
)

func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "prints the timing snapshot of the current (or given) session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&sessionKey,
		"session-key",
		0,
		"session to show (0: live session or latest race)")
	cmd.Flags().StringVarP(&output,
		"output",
		"o",
		common.OutputTable,
		"output format (table, json)")
	cmd.Flags().StringVar(&jsonPath,
		"jsonpath",
		"",
		"jsonpath expression applied to the json output, e.g. $.snapshot.rows[*].code")
	return cmd
}

type bootstrapper interface {
	Bootstrap(ctx context.Context, preferredKey int) (*model.TimingBootstrap, error)
}

func runSnapshot(w io.Writer) error {
	if _, err := common.SetupLogger(); err != nil {
		return err
	}
	cfg, err := config.TimingConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return printSnapshot(ctx, w, common.NewTimingService(cfg), time.Now())
}

//nolint:whitespace // editor/linter issue
func printSnapshot(
	ctx context.Context,
	w io.Writer,
	source bootstrapper,
	now time.Time,
) error {
	if output != common.OutputTable && output != common.OutputJSON {
		return fmt.Errorf("unknown output format %q", output)
	}
	if jsonPath != "" && output != common.OutputJSON {
		return errors.New("--jsonpath requires --output json")
	}
	b, err := source.Bootstrap(ctx, sessionKey)
	if err != nil {
		log.Error("could not fetch timing data", log.ErrorField(err))
		return err
	}
	if output == common.OutputJSON {
		// the raw history would dominate the document
		b.ReplayData = nil
		return common.RenderJSON(w, b, jsonPath)
	}
	common.RenderBootstrap(w, b, now)
	return nil
}
