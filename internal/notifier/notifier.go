package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"trendwatch/internal/models"
)

// Deliverer hands a built report to a downstream channel. Implementations
// must return an error when delivery did not reach the channel, since the
// caller uses the outcome to decide whether to write report markers.
type Deliverer interface {
	Deliver(ctx context.Context, report *models.Report) error
}

// Webhook posts reports as JSON to a configured URL. Any 2xx response counts
// as delivered.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// webhookPayload is the wire shape posted to the webhook: a pre-rendered
// text block for chat-style receivers plus the structured report.
type webhookPayload struct {
	Text   string         `json:"text"`
	Report *models.Report `json:"report"`
}

func (w *Webhook) Deliver(ctx context.Context, report *models.Report) error {
	payload := webhookPayload{
		Text:   RenderText(report),
		Report: report,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode report: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// RenderText formats a report as a numbered text block, one line per entry,
// with new items flagged.
func RenderText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Trend report (%s) %s\n", report.Mode, report.CrawlTime.Format("2006-01-02 15:04"))

	for i, e := range report.Entries {
		marker := ""
		if e.IsNew {
			marker = " [new]"
		}
		if e.URL != "" {
			fmt.Fprintf(&b, "%d. [%s] %s%s\n   %s\n", i+1, e.PlatformID, e.Title, marker, e.URL)
		} else {
			fmt.Fprintf(&b, "%d. [%s] %s%s\n", i+1, e.PlatformID, e.Title, marker)
		}
	}

	if len(report.Entries) == 0 {
		b.WriteString("No items to report\n")
	}

	return b.String()
}

// LogDeliverer writes reports to the process log. Used when no webhook URL
// is configured so cycles still surface their output somewhere.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, report *models.Report) error {
	log.Printf("Report (%s): %d entries, %d new", report.Mode, len(report.Entries), report.NewCount)
	return nil
}
