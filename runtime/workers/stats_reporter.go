package workers

import (
	"chat-router/observability"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// StatsSource is implemented by observability.MonitoringService.
type StatsSource interface {
	Stats() observability.Stats
	Health() observability.Health
}

// StatsReporterWorker prints the monitoring snapshot as a console dashboard.
type StatsReporterWorker struct {
	out      io.Writer
	source   StatsSource
	interval time.Duration
}

func NewStatsReporterWorker(out io.Writer, source StatsSource, interval time.Duration) *StatsReporterWorker {
	return &StatsReporterWorker{out: out, source: source, interval: interval}
}

func (w *StatsReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Print()
			return nil
		case <-ticker.C:
			w.Print()
		}
	}
}

// Print writes one dashboard: a summary table, then active users and groups.
func (w *StatsReporterWorker) Print() {
	stats := w.source.Stats()
	health := w.source.Health()

	statusColor := color.New(color.BgBlack, color.FgGreen)
	if health.Status != observability.Healthy {
		statusColor = color.New(color.BgBlack, color.FgRed)
	}
	header := fmt.Sprintf(" ROUTER %s | uptime %s | error rate %.2f%% ",
		health.Status, stats.Uptime.Round(time.Second), health.ErrorRate*100)
	_, _ = fmt.Fprintln(w.out, statusColor.Render(header))

	c := stats.Counters
	summary := newTable(w.out, []string{"Kind", "Sent", "Received"})
	summary.AppendBulk([][]string{
		{"message", u(c.MessagesSent), u(c.MessagesReceived)},
		{"file", u(c.FilesSent), u(c.FilesReceived)},
		{"image", u(c.ImagesSent), u(c.ImagesReceived)},
		{"edit", u(c.EditsSent), u(c.EditsReceived)},
	})
	summary.Render()

	system := newTable(w.out, []string{"Metric", "Value"})
	system.AppendBulk([][]string{
		{"users registered", u(c.UsersRegistered)},
		{"groups created", u(c.GroupsCreated)},
		{"joins / leaves", fmt.Sprintf("%d / %d", c.GroupJoins, c.GroupLeaves)},
		{"errors", u(c.Errors)},
		{"delivery nacks", u(c.DeliveryNacks)},
		{"avg processing", stats.AvgProcessingTime.String()},
		{"max processing", stats.MaxProcessingTime.String()},
		{"inbound buffer", fmt.Sprintf("%d / %d", stats.QueueLength, stats.QueueCapacity)},
		{"rss", fmt.Sprintf("%d MB", health.MemoryRSS/1024/1024)},
	})
	system.Render()

	if len(stats.ActiveUsers) > 0 {
		users := newTable(w.out, []string{"User", "Name", "Last activity"})
		for _, s := range stats.ActiveUsers {
			users.Append([]string{s.UserID, s.Username, s.LastActivity.Format(time.TimeOnly)})
		}
		users.Render()
	}
	if len(stats.ActiveGroups) > 0 {
		groups := newTable(w.out, []string{"Group", "Name", "Members", "Age"})
		for _, g := range stats.ActiveGroups {
			groups.Append([]string{g.GroupID, g.Name, strconv.Itoa(g.MemberCount),
				time.Since(g.CreatedAt).Round(time.Second).String()})
		}
		groups.Render()
	}
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func u(v uint64) string { return strconv.FormatUint(v, 10) }
