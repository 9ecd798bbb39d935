package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reelbot/internal/audit"
	"github.com/fpang/reelbot/internal/boot"
	"github.com/fpang/reelbot/internal/caption"
	"github.com/fpang/reelbot/internal/ledger"
	"github.com/fpang/reelbot/internal/schedule"
)

func newStatusCommand() *cobra.Command {
	var (
		limit       int
		withCatalog bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show posted reels and upcoming triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, awsCfg, err := boot.LoadConfig(ctx)
			if err != nil {
				return err
			}
			sched, err := boot.NewSchedule(cfg)
			if err != nil {
				return err
			}
			records, err := boot.NewLedger(cfg, awsCfg).Load(ctx)
			if err != nil {
				return err
			}

			total := -1
			if withCatalog {
				cat, err := boot.NewCatalog(ctx, cfg, awsCfg)
				if err != nil {
					return err
				}
				items, err := cat.List(ctx)
				if err != nil {
					return err
				}
				total = len(items)
			}

			// The audit log only exists where cycles ran locally.
			uploads, err := audit.New(cfg.AuditPath()).Rows()
			if err != nil {
				log.Warn().Err(err).Str("path", cfg.AuditPath()).Msg("Skipping unreadable audit log")
			}

			view := statusView{
				Records:  records,
				Total:    total,
				Schedule: sched,
				Now:      time.Now(),
				Limit:    limit,
			}
			if len(uploads) > 0 {
				view.LastUpload = &uploads[len(uploads)-1]
			}
			writeStatus(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent posts to list (0 = all)")
	cmd.Flags().BoolVar(&withCatalog, "catalog", false, "List the remote catalog to report remaining reels")
	return cmd
}

// captionPreview caps the caption shown for the last upload.
const captionPreview = 80

var recentColumns = []column{
	{Title: "#", Align: text.AlignRight},
	{Title: "Name", Align: text.AlignLeft},
	{Title: "Posted", Align: text.AlignLeft},
}

type statusView struct {
	Records    []ledger.Record
	Total      int // catalog size, or -1 when not listed
	Schedule   *schedule.Schedule
	Now        time.Time
	Limit      int
	LastUpload *audit.Row
}

func writeStatus(w io.Writer, v statusView) {
	loc := v.Schedule.Location()

	recent := slices.Clone(v.Records)
	slices.Reverse(recent)
	if v.Limit > 0 && len(recent) > v.Limit {
		recent = recent[:v.Limit]
	}
	if len(recent) == 0 {
		fmt.Fprintln(w, "No reels posted yet.")
	} else {
		rows := make([][]string, 0, len(recent))
		for i, rec := range recent {
			posted := "-"
			if !rec.PostedAt.IsZero() {
				posted = rec.PostedAt.In(loc).Format("2006-01-02 15:04") + " (" + humanize.RelTime(rec.PostedAt, v.Now, "ago", "from now") + ")"
			}
			name := rec.Name
			if name == "" {
				name = rec.ID
			}
			rows = append(rows, []string{strconv.Itoa(len(v.Records) - i), name, posted})
		}
		fmt.Fprintln(w, renderTable(recentColumns, rows))
	}

	if v.Total >= 0 {
		fmt.Fprintf(w, "Uploaded: %d/%d, remaining %d\n", len(v.Records), v.Total, max(v.Total-len(v.Records), 0))
	} else {
		fmt.Fprintf(w, "Uploaded: %s\n", humanize.Comma(int64(len(v.Records))))
	}

	if u := v.LastUpload; u != nil {
		first, _, _ := strings.Cut(u.Caption, "\n")
		fmt.Fprintf(w, "Last caption (%s, %s): %s\n", u.Filename, humanize.RelTime(u.Timestamp, v.Now, "ago", "from now"), caption.Truncate(first, captionPreview))
	}

	upcoming := v.Schedule.Upcoming(v.Now, 3)
	parts := make([]string, len(upcoming))
	for i, at := range upcoming {
		parts[i] = at.In(loc).Format("Mon 15:04")
	}
	fmt.Fprintf(w, "Schedule: %s\nNext: %s\n", v.Schedule, strings.Join(parts, ", "))
}
