// Package slackbot posts ingest, processing and report summaries to a
// Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"complaintbot/internal/domain"
	"complaintbot/internal/export"
	"complaintbot/internal/ingest"
	"complaintbot/internal/processing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

type Config struct {
	Token   string
	Channel string
	// AlertUsers are member IDs, names or emails mentioned on critical
	// complaints.
	AlertUsers []string
}

// Notifier is nil when Slack is not configured; every method is then a
// no-op.
type Notifier struct {
	api        *slack.Client
	channel    string
	alertUsers []string
	people     *directory
	log        zerolog.Logger
}

func New(cfg Config, hc *http.Client, log zerolog.Logger) *Notifier {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.Channel) == "" {
		return nil
	}
	opts := []slack.Option{}
	if hc != nil {
		opts = append(opts, slack.OptionHTTPClient(hc))
	}
	return NewWithClient(slack.New(cfg.Token, opts...), cfg.Channel, cfg.AlertUsers, log)
}

func NewWithClient(api *slack.Client, channel string, alertUsers []string, log zerolog.Logger) *Notifier {
	return &Notifier{
		api:        api,
		channel:    channel,
		alertUsers: alertUsers,
		people:     newDirectory(api),
		log:        log.With().Str("component", "slack").Logger(),
	}
}

func (n *Notifier) NotifyIngest(ctx context.Context, source string, res ingest.MergeResult) error {
	if n == nil {
		return nil
	}
	text := FormatIngestSummary(source, res)
	return n.post(ctx, "ingest", text, sectionBlocks("Complaints ingested", text)...)
}

// NotifyProcessing posts the batch summary; critical complaints get an
// extra section that mentions the alert users.
func (n *Notifier) NotifyProcessing(ctx context.Context, sum processing.Summary, critical []domain.Complaint) error {
	if n == nil {
		return nil
	}
	text := FormatProcessingSummary(sum)
	blocks := sectionBlocks("Complaint processing finished", text)
	if len(critical) > 0 {
		ids, unresolved, err := n.people.resolve(ctx, n.alertUsers)
		if err != nil {
			n.log.Warn().Err(err).Msg("slack member lookup failed")
		}
		if len(unresolved) > 0 {
			n.log.Warn().Strs("unresolved", unresolved).Msg("alert users not found")
		}
		alert := FormatCriticalAlert(critical, ids)
		blocks = append(blocks, slack.NewDividerBlock(), slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, alert, false, false), nil, nil))
		text += "\n" + alert
	}
	return n.post(ctx, "processing", text, blocks...)
}

// NotifyReport posts the report summary and uploads each attachment.
func (n *Notifier) NotifyReport(ctx context.Context, r export.Report, attachments ...string) error {
	if n == nil {
		return nil
	}
	text := FormatReportSummary(r)
	if err := n.post(ctx, "report", text, sectionBlocks("Complaint report", text)...); err != nil {
		return err
	}
	for _, path := range attachments {
		if err := n.upload(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, kind, text string, blocks ...slack.Block) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		n.log.Error().Err(err).Str("kind", kind).Msg("slack post failed")
		return fmt.Errorf("slack post %s: %w", kind, err)
	}
	n.log.Info().Str("kind", kind).Str("ts", ts).Msg("slack summary posted")
	return nil
}

func (n *Notifier) upload(ctx context.Context, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("slack upload: %w", err)
	}
	if fi.Size() <= 0 {
		return fmt.Errorf("slack upload: %s is empty", path)
	}
	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     path,
		FileSize: int(fi.Size()),
		Filename: filepath.Base(path),
		Channel:  n.channel,
		Title:    filepath.Base(path),
	})
	if err != nil {
		n.log.Error().Err(err).Str("file", path).Msg("slack upload failed")
		return fmt.Errorf("slack upload %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sectionBlocks(header, body string) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
	}
}

func FormatIngestSummary(source string, res ingest.MergeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: `%s`\n", source)
	fmt.Fprintf(&b, "*%d* added, *%d* already known", res.Added, res.Skipped)
	if res.Invalid > 0 {
		fmt.Fprintf(&b, ", *%d* invalid", res.Invalid)
	}
	if res.Errors > 0 {
		fmt.Fprintf(&b, ", *%d* failed to save", res.Errors)
	}
	return b.String()
}

func FormatProcessingSummary(sum processing.Summary) string {
	if sum.Total == 0 {
		return "No complaints were waiting for analysis."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%d* of %d analyzed, *%d* failed", sum.Successful, sum.Total, sum.Failed)
	if sum.PersistErrors > 0 {
		fmt.Fprintf(&b, ", *%d* could not be saved", sum.PersistErrors)
	}
	if sum.Interrupted {
		b.WriteString("\n_Run was interrupted; remaining complaints stay pending._")
	}
	return b.String()
}

// FormatCriticalAlert lists critical complaints with their first root
// cause.
func FormatCriticalAlert(critical []domain.Complaint, mentionIDs []string) string {
	var b strings.Builder
	for _, id := range mentionIDs {
		fmt.Fprintf(&b, "<@%s> ", id)
	}
	fmt.Fprintf(&b, ":rotating_light: %d critical complaint(s)", len(critical))
	for _, c := range critical {
		cause := domain.StripPointPrefix(domain.SplitPoints(c.RootCause)[0])
		line := c.ID
		if c.OrderID != "" {
			line += " (order " + c.OrderID + ")"
		}
		if c.Category != "" {
			line += " " + c.Category
		}
		if cause != "" {
			line += ": " + cause
		}
		b.WriteString("\n• " + line)
	}
	return b.String()
}

func FormatReportSummary(r export.Report) string {
	var b strings.Builder
	s := r.Stats
	fmt.Fprintf(&b, "*%d* complaints: %d pending, %d successful, %d failed (%.2f%% processed)",
		s.Total, s.Pending, s.Successful, s.Failed, s.ProcessedPercentage)
	if r.Breakdown.TopCategory != "" {
		fmt.Fprintf(&b, "\nTop category: *%s* (%d)", r.Breakdown.TopCategory, r.Breakdown.ByCategory[r.Breakdown.TopCategory])
	}
	var levels []string
	for i := len(domain.Importances) - 1; i >= 0; i-- {
		level := domain.Importances[i]
		if n := r.Breakdown.ByImportance[level]; n > 0 {
			levels = append(levels, fmt.Sprintf("%s %d", level, n))
		}
	}
	if len(levels) > 0 {
		b.WriteString("\nBy importance: " + strings.Join(levels, ", "))
	}
	if r.Breakdown.ProcessedCount > 0 {
		fmt.Fprintf(&b, "\nAverage processing time: %.1f hours", r.Breakdown.AvgProcessingHours)
	}
	return b.String()
}
