package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/cmd/common"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/replay"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
)

type options struct {
	sessionKey int
	lap        int
	play       bool
	loop       bool
	output     string
}

var opts options

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "shows the timing of a completed session lap by lap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.sessionKey,
		"session-key",
		0,
		"session to replay")
	cmd.Flags().IntVar(&opts.lap,
		"lap",
		0,
		"show the timing at the end of this lap (0: whole session)")
	cmd.Flags().BoolVar(&opts.play,
		"play",
		false,
		"advance lap by lap every replay-lap-interval")
	cmd.Flags().BoolVar(&opts.loop,
		"loop",
		false,
		"restart at lap 1 after the last lap (with --play)")
	cmd.Flags().StringVarP(&opts.output,
		"output",
		"o",
		common.OutputTable,
		"output format (table, json)")
	cmd.MarkFlagsMutuallyExclusive("lap", "play")
	return cmd
}

type historySource interface {
	History(ctx context.Context, sessionKey int) (*model.ReplayData, error)
	ReplayEngine() *timing.ReplayEngine
}

func runReplay(w io.Writer) error {
	logger, err := common.SetupLogger()
	if err != nil {
		return err
	}
	cfg, err := config.TimingConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.AddToContext(ctx, logger)
	err = replaySession(ctx, w, common.NewTimingService(cfg), opts, cfg)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

//nolint:whitespace // editor/linter issue
func replaySession(
	ctx context.Context,
	w io.Writer,
	source historySource,
	o options,
	cfg *config.Timing,
) error {
	if o.sessionKey <= 0 {
		return errors.New("--session-key is required")
	}
	if o.output != common.OutputTable && o.output != common.OutputJSON {
		return fmt.Errorf("unknown output format %q", o.output)
	}
	history, err := source.History(ctx, o.sessionKey)
	if err != nil {
		return fmt.Errorf("load session %d: %w", o.sessionKey, err)
	}
	emit := frameWriter(w, o.output, history)

	if !o.play {
		engine := source.ReplayEngine()
		lap := o.lap
		c := replay.NewCursor(timing.MaxLap(history))
		if lap > 0 {
			c = c.Seek(lap)
			lap = c.Lap
		} else {
			c = c.Seek(c.Max)
		}
		return emit(replay.Frame{Cursor: c, Snapshot: engine.Snapshot(history, lap)})
	}

	playerOpts := []replay.PlayerOption{
		replay.WithEngine(source.ReplayEngine()),
		replay.WithLapInterval(cfg.ReplayLapInterval),
		replay.WithLogger(log.GetFromContext(ctx).Named("replay")),
	}
	if !o.loop {
		playerOpts = append(playerOpts, replay.WithStopAtEnd())
	}
	var emitErr error
	err = replay.NewPlayer(history, playerOpts...).Run(ctx, func(f replay.Frame) {
		if emitErr == nil {
			emitErr = emit(f)
		}
	})
	return errors.Join(err, emitErr)
}

func frameWriter(w io.Writer, output string, history *model.ReplayData) func(replay.Frame) error {
	return func(f replay.Frame) error {
		if output == common.OutputJSON {
			return common.RenderJSON(w, f, "")
		}
		title := fmt.Sprintf("Lap %d/%d", f.Cursor.Lap, f.Cursor.Max)
		if history.Session != nil {
			title = fmt.Sprintf("%s • %s", history.Session.SessionName, title)
		}
		common.RenderSnapshot(w, f.Snapshot, title)
		return nil
	}
}
