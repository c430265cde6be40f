package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"buzzer-service/internal/poll"
)

// NewWatchCmd builds the subcommand that tails a scope's press ranking from a
// terminal: the same polling loop admin clients run, with suspend-on-repeated
// failure and manual resume (SIGHUP).
func NewWatchCmd() *cobra.Command {
	var (
		serverURL string
		scopeRaw  string
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll and print a scope's buzzer ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeID, err := uuid.Parse(scopeRaw)
			if err != nil {
				return fmt.Errorf("invalid --scope: %w", err)
			}
			log := newLogger()

			client := poll.NewClient(serverURL, nil)
			poller := poll.NewPoller(client, scopeID, interval, poll.DefaultMaxFailures, nil, log)

			ctx := cmd.Context()
			go poller.Run(ctx)

			refresh := make(chan os.Signal, 1)
			signal.Notify(refresh, syscall.SIGHUP)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case <-stop:
					return nil
				case <-ctx.Done():
					return nil
				case <-refresh:
					if err := poller.Refresh(ctx); err != nil {
						log.Warn().Err(err).Msg("manual refresh failed")
					}
				case snap := <-poller.Updates():
					if snap.Err != nil {
						if snap.Suspended {
							log.Warn().Int("failures", snap.Failures).Msg("polling suspended; send SIGHUP to resume")
						}
						continue
					}
					for i, e := range snap.Entries {
						fmt.Printf("%2d. %-20s %s  %+d (%s)\n",
							i+1, e.ParticipantName, e.RespondedAt.Format("15:04:05.000"), e.PointsAwarded, e.Verdict)
					}
					fmt.Println("----")
				}
			}
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "http://localhost:8080", "buzzer service base URL")
	cmd.Flags().StringVar(&scopeRaw, "scope", "", "scope (buzzer question) ID to watch")
	cmd.Flags().DurationVar(&interval, "interval", poll.DefaultInterval, "poll interval")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}
