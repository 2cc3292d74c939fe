package main

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/bohania/reception-desk/internal/arrivals"
)

var regNoPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z]{2}\d{4}$`)

func TestRandomRegNo(t *testing.T) {
	for i := 0; i < 100; i++ {
		regNo := randomRegNo()
		if !regNoPattern.MatchString(regNo) {
			t.Errorf("Malformed reg no: %s", regNo)
		}
	}
}

func TestRandomPhone(t *testing.T) {
	for i := 0; i < 100; i++ {
		phone := randomPhone()
		if len(phone) != 10 {
			t.Errorf("Expected 10 digit phone, got %s", phone)
		}
		if phone[0] != '9' {
			t.Errorf("Expected phone to start with 9, got %s", phone)
		}
	}
}

func TestRandomAnnouncement(t *testing.T) {
	announcement := randomAnnouncement()

	if announcement.RegNo == "" {
		t.Error("Announcement missing reg no")
	}
	if announcement.Source != "RSA" {
		t.Errorf("Expected source RSA, got %s", announcement.Source)
	}
	if announcement.Note == "" {
		t.Error("Announcement missing note")
	}

	// The payload must round-trip through the listener's wire format.
	data, err := json.Marshal(announcement)
	if err != nil {
		t.Fatalf("Failed to marshal announcement: %v", err)
	}
	var decoded arrivals.Announcement
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal announcement: %v", err)
	}
	if decoded.RegNo != announcement.RegNo {
		t.Errorf("Reg no did not survive round trip: %s != %s", decoded.RegNo, announcement.RegNo)
	}
}
