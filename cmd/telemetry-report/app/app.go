package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/storage"
)

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.SessionID == uuid.Nil {
		return listSessions(ctx, store, config, out)
	}
	return reportSession(ctx, store, config, out, logger)
}

func listSessions(ctx context.Context, store *storage.SqliteStore, config *Config, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		return storage.ErrNoData
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tSOURCE\tPROTOCOL")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s (%s)\t%s\t%s\n",
			s.ID,
			s.StartTime.In(config.Location).Format(time.DateTime),
			humanize.Time(s.StartTime),
			s.Source,
			s.Protocol)
	}
	return w.Flush()
}

func reportSession(ctx context.Context, store *storage.SqliteStore, config *Config, out io.Writer, logger *slog.Logger) error {
	var opts []storage.ReaderOption
	var filters []any
	if config.Slot != nil {
		opts = append(opts, storage.WithSlot(*config.Slot))
		filters = append(filters, slog.Int("slot", int(*config.Slot)))
	}
	if config.From != nil {
		opts = append(opts, storage.WithStartTime(*config.From))
		filters = append(filters, slog.String("from", config.From.Format(time.DateTime)))
	}
	if config.To != nil {
		opts = append(opts, storage.WithEndTime(*config.To))
		filters = append(filters, slog.String("to", config.To.Format(time.DateTime)))
	}

	logger.Debug("reader configuration", filters...)

	iter, err := store.ReadRecords(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	summary := NewSummary()
	var records int64
	for iter.Next(ctx) {
		summary.Update(iter.Current())
		records++
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if summary.Empty() {
		return storage.ErrNoData
	}

	session := iter.Session()
	fmt.Fprintf(out, "Session %s from %s, started %s (%s)\n",
		session.ID,
		session.Source,
		session.StartTime.In(config.Location).Format(time.DateTime),
		humanize.Time(session.StartTime))
	fmt.Fprintf(out, "%s records\n\n", humanize.Comma(records))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tID\tLABEL\tSAMPLES\tOLD\tLAST\tMIN\tMAX\tFIRST\tLAST SEEN\tPOSITION")
	for _, s := range summary.Slots() {
		position := "-"
		if s.Position != nil {
			position = fmt.Sprintf("%.6f,%.6f",
				float64(s.Position.Latitude)/1e6,
				float64(s.Position.Longitude)/1e6)
		}

		fmt.Fprintf(w, "%d\t%04X/%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Slot,
			s.ID, s.Instance,
			s.Label,
			humanize.Comma(s.Samples),
			humanize.Comma(s.Old),
			s.FormatValue(s.Last),
			s.FormatValue(s.Min),
			s.FormatValue(s.Max),
			s.First.In(config.Location).Format(time.TimeOnly),
			s.LastSeen.In(config.Location).Format(time.TimeOnly),
			position)
	}
	return w.Flush()
}
