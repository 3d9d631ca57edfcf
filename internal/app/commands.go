package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"complaintbot/internal/domain"
	"complaintbot/internal/export"
	"complaintbot/internal/ingest"
	"complaintbot/internal/processing"
	"complaintbot/internal/scheduler"
)

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) cmdLoad(ctx context.Context, src ingest.RowSource) error {
	res, name, err := a.load(ctx, src)
	if err != nil {
		return err
	}
	printMerge(a.out, name, res)
	return nil
}

func printMerge(out io.Writer, source string, res ingest.MergeResult) {
	fmt.Fprintf(out, "Loaded from %s: %d added, %d already known, %d invalid, %d errors\n",
		source, res.Added, res.Skipped, res.Invalid, res.Errors)
}

func (a *App) load(ctx context.Context, src ingest.RowSource) (ingest.MergeResult, string, error) {
	if src == nil {
		var err error
		if src, err = a.newSource(ctx); err != nil {
			return ingest.MergeResult{}, "", fmt.Errorf("row source: %w", err)
		}
	}
	res, err := a.merger.Load(ctx, src)
	if err != nil {
		return res, src.Name(), err
	}
	a.notifyIngest(ctx, src.Name(), res)
	return res, src.Name(), nil
}

func (a *App) notifyIngest(ctx context.Context, source string, res ingest.MergeResult) {
	if err := a.notifier.NotifyIngest(ctx, source, res); err != nil {
		a.log.Warn().Err(err).Msg("ingest notification failed")
	}
}

func (a *App) cmdProcess(ctx context.Context, args []string) error {
	fs := a.flags("process")
	includeFailed := fs.Bool("include-failed", false, "also retry complaints that previously failed")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	mode := processing.ModePending
	if *includeFailed {
		mode = processing.ModePendingAndFailed
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	sum, err := a.process(ctx, orch, mode)
	if err != nil {
		return err
	}
	printSummary(a.out, sum)
	return nil
}

func (a *App) process(ctx context.Context, orch *processing.Orchestrator, mode processing.Mode) (processing.Summary, error) {
	sum, err := orch.Run(ctx, mode)
	if err != nil {
		return sum, err
	}
	var critical []domain.Complaint
	for _, id := range sum.Analyzed {
		c, err := a.store.GetByID(context.WithoutCancel(ctx), id)
		if err != nil || c == nil {
			continue
		}
		if c.Importance == domain.ImportanceCritical {
			critical = append(critical, *c)
		}
	}
	if err := a.notifier.NotifyProcessing(context.WithoutCancel(ctx), sum, critical); err != nil {
		a.log.Warn().Err(err).Msg("processing notification failed")
	}
	return sum, nil
}

func printSummary(out io.Writer, sum processing.Summary) {
	if sum.Total == 0 {
		fmt.Fprintln(out, "No complaints to process.")
		return
	}
	fmt.Fprintf(out, "Processed %d of %d complaints: %d successful, %d failed",
		sum.Successful+sum.Failed, sum.Total, sum.Successful, sum.Failed)
	if sum.PersistErrors > 0 {
		fmt.Fprintf(out, ", %d not saved", sum.PersistErrors)
	}
	fmt.Fprintln(out)
	if sum.Interrupted {
		fmt.Fprintln(out, "Interrupted; the remaining complaints stay pending.")
	}
}

func (a *App) cmdReset(ctx context.Context) error {
	ok, err := confirm(a.in, a.out, "move every processed complaint back to Pending", "RESET ALL")
	if err != nil || !ok {
		return err
	}
	counts, err := a.store.ResetProcessed(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Fprintf(a.out, "Reset %d successful and %d failed complaints to Pending.\n", counts.Successful, counts.Failed)
	return nil
}

func (a *App) cmdClear(ctx context.Context) error {
	ok, err := confirm(a.in, a.out, "permanently delete every complaint", "DELETE ALL")
	if err != nil || !ok {
		return err
	}
	n, err := a.store.ClearAll(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Fprintf(a.out, "Deleted %d complaints.\n", n)
	return nil
}

// cmdRefresh replaces every complaint with a fresh read of the configured
// source and analyzes them again. The model client and the rows are ready
// before anything is deleted.
func (a *App) cmdRefresh(ctx context.Context) error {
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	src, err := a.newSource(ctx)
	if err != nil {
		return fmt.Errorf("row source: %w", err)
	}
	rows, err := src.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read %s rows: %w", src.Name(), err)
	}

	ok, err := confirm(a.in, a.out, "delete every complaint, load them again and re-run analysis", "REFRESH ALL")
	if err != nil || !ok {
		return err
	}
	n, err := a.store.ClearAll(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Fprintf(a.out, "Deleted %d complaints.\n", n)

	res, err := a.merger.Merge(ctx, rows)
	if err != nil {
		return err
	}
	printMerge(a.out, src.Name(), res)
	a.notifyIngest(ctx, src.Name(), res)

	sum, err := a.process(ctx, orch, processing.ModePending)
	if err != nil {
		return err
	}
	printSummary(a.out, sum)
	return nil
}

func (a *App) cmdStats(ctx context.Context) error {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	b, err := a.store.Breakdown(ctx)
	if err != nil {
		return fmt.Errorf("breakdown: %w", err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total complaints:\t%d\n", stats.Total)
	fmt.Fprintf(tw, "Pending:\t%d\n", stats.Pending)
	fmt.Fprintf(tw, "Successful:\t%d\n", stats.Successful)
	fmt.Fprintf(tw, "Failed:\t%d\n", stats.Failed)
	fmt.Fprintf(tw, "Processed:\t%.2f%%\n", stats.ProcessedPercentage)
	if b.TopCategory != "" {
		fmt.Fprintf(tw, "Most common category:\t%s\n", b.TopCategory)
	}
	if b.TopImportance != "" {
		fmt.Fprintf(tw, "Most common importance:\t%s\n", b.TopImportance)
	}
	if b.ProcessedCount > 0 {
		fmt.Fprintf(tw, "Average processing time:\t%.1f hours\n", b.AvgProcessingHours)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(b.ByImportance) > 0 {
		fmt.Fprintln(a.out, "\nBy importance:")
		for i := len(domain.Importances) - 1; i >= 0; i-- {
			level := domain.Importances[i]
			fmt.Fprintf(a.out, "  %-9s %d\n", level, b.ByImportance[level])
		}
	}
	if len(b.ByCategory) > 0 {
		fmt.Fprintln(a.out, "\nBy category:")
		for _, cat := range sortedByCount(b.ByCategory) {
			fmt.Fprintf(a.out, "  %-30s %d\n", cat, b.ByCategory[cat])
		}
	}
	return nil
}

func (a *App) cmdList(ctx context.Context, args []string) error {
	fs := a.flags("list")
	limit := fs.Int("n", 20, "maximum number of complaints to show (0 for all)")
	status := fs.String("status", "", "only show Pending, Successful or Failed")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var (
		list []domain.Complaint
		err  error
	)
	if *status != "" {
		st, perr := domain.ParseStatus(*status)
		if perr != nil {
			return perr
		}
		list, err = a.store.SelectByStatus(ctx, st)
	} else {
		list, err = a.store.All(ctx)
	}
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No complaints.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORDER\tSTATUS\tIMPORTANCE\tCATEGORY\tRECEIVED")
	for i, c := range list {
		if *limit > 0 && i == *limit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, dash(c.OrderID), c.Status, c.Importance,
			dash(clip(c.Category, 32)), a.local(c.ReceivedAt).Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if *limit > 0 && len(list) > *limit {
		fmt.Fprintf(a.out, "... %d more\n", len(list)-*limit)
	}
	return nil
}

func (a *App) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	c, err := a.store.Find(ctx, args[0])
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if c == nil {
		return fmt.Errorf("no complaint matches %q", args[0])
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	row := func(label, value string) { fmt.Fprintf(tw, "%s:\t%s\n", label, dash(value)) }
	row("Complaint ID", c.ID)
	row("Order ID", c.OrderID)
	row("Name", c.Name)
	row("Email", c.Email)
	row("Contact Number", c.ContactNumber)
	row("Product", c.ProductName)
	row("Purchase Date", c.PurchaseDate)
	row("Category", c.Category)
	row("Photo Proof", c.PhotoProofLink)
	row("Importance", string(c.Importance))
	row("Status", string(c.Status))
	row("Received", a.local(c.ReceivedAt).Format("2006-01-02 15:04:05"))
	if c.ProcessedAt != nil {
		row("Processed", a.local(*c.ProcessedAt).Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\nDescription:\n  %s\n", dash(c.Description))
	printPoints(a.out, "Root cause", c.RootCause)
	printPoints(a.out, "Suggested solution", c.SuggestedSolution)
	return nil
}

func printPoints(out io.Writer, label, stored string) {
	if strings.TrimSpace(stored) == "" {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", label)
	n := 0
	for _, p := range domain.SplitPoints(stored) {
		if p = domain.StripPointPrefix(p); p == "" {
			continue
		}
		n++
		fmt.Fprintf(out, "  %d. %s\n", n, p)
	}
}

func (a *App) cmdExport(ctx context.Context, args []string) error {
	fs := a.flags("export")
	format := fs.String("format", "csv", "csv, pdf or png")
	out := fs.String("out", "", "output file (default: a timestamped file in export_dir)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	path, err := a.export(ctx, strings.ToLower(*format), *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported to %s\n", path)
	return nil
}

func (a *App) export(ctx context.Context, format, path string) (string, error) {
	switch format {
	case "csv", "pdf", "png":
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
	if path == "" {
		prefix := "complaints"
		if format != "csv" {
			prefix = "report"
		}
		path = filepath.Join(a.cfg.ExportDir,
			fmt.Sprintf("%s_%s.%s", prefix, a.local(a.now()).Format("20060102_150405"), format))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("export dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	err = a.writeExport(ctx, f, format)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	a.log.Info().Str("format", format).Str("path", path).Msg("export written")
	return path, nil
}

func (a *App) writeExport(ctx context.Context, w io.Writer, format string) error {
	if format == "csv" {
		all, err := a.store.All(ctx)
		if err != nil {
			return err
		}
		return export.WriteCSV(w, all)
	}
	r, err := a.buildReport(ctx)
	if err != nil {
		return err
	}
	if format == "pdf" {
		return export.WritePDFReport(w, r)
	}
	return export.RenderDashboard(w, r)
}

func (a *App) buildReport(ctx context.Context) (export.Report, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return export.Report{}, err
	}
	b, err := a.store.Breakdown(ctx)
	if err != nil {
		return export.Report{}, err
	}
	all, err := a.store.All(ctx)
	if err != nil {
		return export.Report{}, err
	}
	return export.Report{
		GeneratedAt: a.now(),
		Stats:       stats,
		Breakdown:   b,
		Highlights:  export.SelectHighlights(all),
	}, nil
}

// cmdRun serves metrics and runs the scheduled jobs until ctx is done.
func (a *App) cmdRun(ctx context.Context) error {
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	sched := scheduler.New(a.cfg.Location, a.log)
	if err := sched.Add("process", a.cfg.ProcessSchedule, func(ctx context.Context) error {
		return a.processJob(ctx, orch)
	}); err != nil {
		return err
	}
	if err := sched.Add("report", a.cfg.ReportSchedule, a.reportJob); err != nil {
		return err
	}

	if stats, err := a.store.Stats(ctx); err == nil {
		a.metrics.SetPending(stats.Pending)
	}

	errc := make(chan error, 1)
	if a.cfg.MetricsAddr != "" {
		go func() { errc <- a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.log) }()
	}
	if sched.Jobs() == 0 && a.cfg.MetricsAddr == "" {
		return errors.New("nothing to run: both schedules and metrics_addr are disabled")
	}

	a.log.Info().Int("jobs", sched.Jobs()).Msg("complaint bot running")
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case err := <-errc:
		if err != nil {
			a.log.Error().Err(err).Msg("metrics listener failed")
		}
		<-ctx.Done()
	case <-ctx.Done():
	}
	<-done
	return nil
}

// processJob ingests from the configured source, then analyzes whatever
// is pending. An ingest failure does not stop analysis.
func (a *App) processJob(ctx context.Context, orch *processing.Orchestrator) error {
	res, name, err := a.load(ctx, nil)
	if err != nil {
		a.log.Error().Err(err).Str("source", name).Msg("scheduled ingest failed")
	} else {
		a.log.Info().Str("source", name).Str("result", res.String()).Msg("scheduled ingest done")
	}
	_, err = a.process(ctx, orch, processing.ModePending)
	return err
}

// reportJob writes the PDF report and dashboard and posts them to Slack.
func (a *App) reportJob(ctx context.Context) error {
	var files []string
	for _, format := range []string{"pdf", "png"} {
		path, err := a.export(ctx, format, "")
		if err != nil {
			return err
		}
		files = append(files, path)
	}
	r, err := a.buildReport(ctx)
	if err != nil {
		return err
	}
	return a.notifier.NotifyReport(ctx, r, files...)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func (a *App) local(t time.Time) time.Time {
	if a.cfg.Location == nil {
		return t
	}
	return t.In(a.cfg.Location)
}

// sortedByCount orders keys by count descending, then alphabetically.
func sortedByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
