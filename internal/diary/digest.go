package diary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/alerts"
	"github.com/fpang/baby-monitor/internal/assets"
	"github.com/fpang/baby-monitor/internal/jsonutil"
	"github.com/fpang/baby-monitor/internal/metrics"
)

// fallbackLength is the rune limit of the summary and highlight used when
// the summarizer fails.
const fallbackLength = 200

// Digest is a generated daily digest.
type Digest struct {
	Subject string
	Body    string
	Image   []byte
	Date    time.Time
	// Entries is the number of buffered entries the digest covers.
	Entries int
}

type digestOutput struct {
	SubjectHighlight string   `json:"subject_highlight"`
	Summary          string   `json:"summary"`
	Highlight        string   `json:"highlight"`
	Notifications    []string `json:"notifications"`
}

var digestSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"subject_highlight": {Type: genai.TypeString},
		"summary":           {Type: genai.TypeString},
		"highlight":         {Type: genai.TypeString},
		"notifications":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"subject_highlight", "summary", "highlight", "notifications"},
}

// GenerateDailyDigest builds today's digest. It returns nil when today's
// digest was already sent or there are no entries.
func (r *Recorder) GenerateDailyDigest(ctx context.Context) *Digest {
	now := r.now()

	r.mu.Lock()
	if r.sentOn(now) {
		r.mu.Unlock()
		log.Info().Msg("Today's digest has already been sent")
		return nil
	}
	entries := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	if len(entries) == 0 {
		log.Info().Msg("No diary entries for the digest")
		return nil
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	aggregated := strings.Join(lines, "\n")

	out := r.summarize(ctx, aggregated)

	var b strings.Builder
	b.WriteString(out.Summary)
	b.WriteString("\n\n[Today's highlight]\n")
	b.WriteString(out.Highlight)
	b.WriteString("\n\n[Notices]\n")
	if len(out.Notifications) > 0 {
		for i, n := range out.Notifications {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + n)
		}
	} else {
		b.WriteString("No particular notices today.")
	}

	return &Digest{
		Subject: fmt.Sprintf("Diary (%s) - %s -", now.Format("2006/01/02"), out.SubjectHighlight),
		Body:    b.String(),
		Image:   representativeImage(entries),
		Date:    now,
		Entries: len(entries),
	}
}

func (r *Recorder) summarize(ctx context.Context, aggregated string) digestOutput {
	fallback := digestOutput{
		SubjectHighlight: "Highlight",
		Summary:          truncateRunes(aggregated, fallbackLength),
		Highlight:        truncateRunes(aggregated, fallbackLength),
	}
	if r.summarizer == nil {
		return fallback
	}

	raw, err := r.summarizer.Summarize(ctx, assets.RenderDailyDigestPrompt(aggregated), digestSchema)
	if err != nil {
		log.Error().Err(err).Msg("Digest summarization failed, using fallback")
		return fallback
	}
	out, err := jsonutil.ParseJSON[digestOutput](raw)
	if err != nil {
		log.Error().Err(err).Msg("Digest response did not parse, using fallback")
		return fallback
	}
	return out
}

// representativeImage picks the first highlight's image, else the most recent image.
func representativeImage(entries []Entry) []byte {
	for _, e := range entries {
		if e.IsHighlight {
			if len(e.Image) > 0 {
				return e.Image
			}
			break
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if len(entries[i].Image) > 0 {
			return entries[i].Image
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SendDailyDigest generates and delivers today's digest. Nothing to send
// counts as success. On delivery the covered entries are cleared and the
// digest is persisted.
func (r *Recorder) SendDailyDigest(ctx context.Context) bool {
	d := r.GenerateDailyDigest(ctx)
	if d == nil {
		log.Info().Msg("No digest to send")
		return true
	}

	if !r.sender.Send(ctx, d.Subject, d.Body, d.Image) {
		log.Error().Str("subject", d.Subject).Msg("Failed to send daily digest")
		metrics.Monitor().Count("DigestFailures").Flush()
		return false
	}

	r.mu.Lock()
	r.lastSent = d.Date
	covered := r.entries[:min(d.Entries, len(r.entries))]
	raw := make([]string, len(covered))
	for i, e := range covered {
		raw[i] = e.Text
	}
	r.entries = append([]Entry(nil), r.entries[len(covered):]...)
	r.mu.Unlock()

	log.Info().Str("date", d.Date.Format("2006-01-02")).Int("entries", d.Entries).Msg("Daily digest sent")
	metrics.Monitor().Metric("DigestEntries", float64(d.Entries), metrics.UnitCount).Count("DigestsSent").Flush()

	if err := r.ledger.RecordDigestSent(ctx, d.Date, d.Subject, d.Entries); err != nil {
		log.Error().Err(err).Msg("Failed to record digest in ledger")
	}
	r.persistDigest(ctx, d, strings.Join(raw, "\n")+"\n")
	if r.publisher != nil {
		err := r.publisher.PublishDigest(ctx, alerts.DigestSent{
			Date:    d.Date.Format("2006-01-02"),
			Subject: d.Subject,
			Entries: d.Entries,
			At:      d.Date.UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish digest event")
		}
	}
	return true
}

// DigestFileNames returns the remote text, image, flag and archive names for t.
func DigestFileNames(t time.Time) (text, image, flag, archive string) {
	day := t.Format("20060102")
	return "daily_digest_text_" + day + ".txt",
		"daily_digest_image_" + day + ".jpg",
		"daily_digest_sent_" + day + ".flag",
		"diary_archive_" + day + ".log.zst"
}

func (r *Recorder) persistDigest(ctx context.Context, d *Digest, rawLog string) {
	if r.store == nil || r.cfg.RemoteDir == "" {
		return
	}
	textName, imageName, flagName, archiveName := DigestFileNames(d.Date)
	dir := r.cfg.RemoteDir

	if err := r.store.UploadFile(ctx, dir, textName, []byte(d.Body), "text/plain; charset=utf-8"); err != nil {
		log.Error().Err(err).Str("file", textName).Msg("Failed to save digest text")
	}
	if len(d.Image) > 0 {
		if err := r.store.UploadFile(ctx, dir, imageName, d.Image, "image/jpeg"); err != nil {
			log.Error().Err(err).Str("file", imageName).Msg("Failed to save digest image")
		}
	} else {
		log.Warn().Msg("Daily digest has no representative image")
	}
	if err := r.store.UploadFile(ctx, dir, flagName, []byte("sent"), "text/plain"); err != nil {
		log.Error().Err(err).Str("file", flagName).Msg("Failed to save digest sent flag")
	}

	archived, err := Compress([]byte(rawLog))
	if err != nil {
		log.Error().Err(err).Msg("Failed to compress diary archive")
		return
	}
	if err := r.store.UploadFile(ctx, dir, archiveName, archived, "application/zstd"); err != nil {
		log.Error().Err(err).Str("file", archiveName).Msg("Failed to save diary archive")
	}
}
