package models

import (
	"testing"
	"time"
)

func TestReportMode_Valid(t *testing.T) {
	valid := []ReportMode{ModeIncremental, ModeCurrent, ModeDaily}
	for _, m := range valid {
		if !m.Valid() {
			t.Errorf("Expected mode %s to be valid", m)
		}
	}

	invalid := []ReportMode{"", "hourly", "CURRENT", "Daily"}
	for _, m := range invalid {
		if m.Valid() {
			t.Errorf("Expected mode %q to be invalid", m)
		}
	}
}

func TestObservation_IdentityKey(t *testing.T) {
	withURL := Observation{
		PlatformID: "toutiao",
		Title:      "Some story",
		URL:        "https://example.com/story",
		Rank:       1,
		CrawlTime:  time.Now(),
	}
	if key := withURL.IdentityKey(); key != "https://example.com/story" {
		t.Errorf("Expected URL as identity key, got %q", key)
	}

	bare := Observation{
		PlatformID: "toutiao",
		Title:      "Some story",
		Rank:       1,
		CrawlTime:  time.Now(),
	}
	if key := bare.IdentityKey(); key != "Some story" {
		t.Errorf("Expected title fallback, got %q", key)
	}

	// Title edits change the fallback key: same story, different identity.
	// That is the documented gap for URL-less boards.
	edited := bare
	edited.Title = "Some story, updated"
	if bare.IdentityKey() == edited.IdentityKey() {
		t.Error("Expected different keys for different bare titles")
	}
}
