package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"hugo-content/pkg/logger"
	"hugo-content/pkg/models"
	"hugo-content/pkg/services"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Parse all content, then re-parse files as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := a.loader(true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := services.NewStore(loader, ".")
			records, err := store.Records(ctx)
			if err != nil {
				return err
			}
			a.log.Info("Loaded content",
				logger.Int("records", len(records)),
				logger.Int("malformed", len(store.Failures())),
			)
			for _, r := range records {
				a.reportViolations(r)
			}

			w := services.NewWatcher(a.cfg.ContentPath, store, a.cfg.WatchDebounce, a.log,
				func(path string, record *models.ContentRecord, err error) {
					if record != nil {
						a.reportViolations(record)
					}
				})
			return w.Run(ctx)
		},
	}
}

func (a *app) reportViolations(record *models.ContentRecord) {
	c := services.CollectionFor(a.schema, record.Path())
	for _, v := range services.CheckRecord(record, c) {
		a.log.Warn("Schema violation",
			logger.String("path", record.Path()),
			logger.String("field", v.Field),
			logger.String("reason", v.Reason),
		)
	}
}
