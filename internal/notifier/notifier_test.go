package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trendwatch/internal/models"
)

func sampleReport() *models.Report {
	return &models.Report{
		Mode:      models.ModeCurrent,
		CrawlTime: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Entries: []models.ReportEntry{
			{ItemID: 1, PlatformID: "toutiao", Title: "Top story", URL: "https://example.com/top", Rank: 1, IsNew: true, Score: 0.9},
			{ItemID: 2, PlatformID: "weibo", Title: "Second story", Rank: 2, Score: 0.7},
		},
		NewCount:   1,
		TotalItems: 2,
	}
}

func TestWebhook_Deliver(t *testing.T) {
	var received webhookPayload
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := NewWebhook(server.URL, 5*time.Second)
	if err := webhook.Deliver(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Delivery failed: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", contentType)
	}
	if received.Report == nil || len(received.Report.Entries) != 2 {
		t.Fatalf("Unexpected report in payload: %+v", received.Report)
	}
	if !strings.Contains(received.Text, "Top story") {
		t.Errorf("Expected rendered text to contain the top entry, got %q", received.Text)
	}
	if !strings.Contains(received.Text, "[new]") {
		t.Errorf("Expected new marker in rendered text, got %q", received.Text)
	}
}

func TestWebhook_DeliverFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	webhook := NewWebhook(server.URL, 5*time.Second)
	if err := webhook.Deliver(context.Background(), sampleReport()); err == nil {
		t.Fatal("Expected error for non-2xx response")
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(sampleReport())

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if !strings.HasPrefix(lines[0], "Trend report (current)") {
		t.Errorf("Unexpected header line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1. [toutiao] Top story [new]") {
		t.Errorf("Unexpected first entry line: %q", lines[1])
	}
	if !strings.Contains(text, "https://example.com/top") {
		t.Error("Expected URL on its own line")
	}

	// Entries without a URL stay on one line
	if !strings.Contains(text, "2. [weibo] Second story") {
		t.Errorf("Unexpected second entry rendering: %q", text)
	}
}

func TestRenderText_Empty(t *testing.T) {
	report := &models.Report{Mode: models.ModeIncremental, CrawlTime: time.Now()}
	if !strings.Contains(RenderText(report), "No items to report") {
		t.Error("Expected empty-report placeholder text")
	}
}

func TestLogDeliverer(t *testing.T) {
	if err := (LogDeliverer{}).Deliver(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Log delivery should never fail: %v", err)
	}
}
