package services

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/regdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCheckInToken_Deterministic(t *testing.T) {
	team := &models.Team{ID: "t1", TeamName: "Alpha", Category: models.CategorySoftware, ContactEmail: "a@example.com"}
	first := MakeCheckInToken(team)

	// Fields outside the token never change it.
	team.ContactEmail = "b@example.com"
	team.UpdatedAt = time.Now()
	second := MakeCheckInToken(team)

	assert.Equal(t, first, second)
	assert.Equal(t, `{"teamId":"t1","teamName":"Alpha","category":"SOFTWARE","verified":true}`, string(first))
}

func TestMakeCheckInToken_DiffersPerTeam(t *testing.T) {
	a := MakeCheckInToken(&models.Team{ID: "t1", TeamName: "Alpha", Category: models.CategorySoftware})
	b := MakeCheckInToken(&models.Team{ID: "t2", TeamName: "Alpha", Category: models.CategorySoftware})
	assert.NotEqual(t, a, b)
}

func TestRenderQRImage(t *testing.T) {
	data, err := RenderQRImage(MakeCheckInToken(&models.Team{ID: "t1", TeamName: "Alpha", Category: models.CategoryHardware}))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, QRImageSize, bounds.Dx())
	assert.Equal(t, bounds.Dx(), bounds.Dy())
}

func TestRenderQRImage_Empty(t *testing.T) {
	_, err := RenderQRImage(nil)
	assert.ErrorIs(t, err, ErrArtifactGeneration)
}

func TestRenderCalendarEvent(t *testing.T) {
	team := &models.Team{ID: "t1", TeamName: "Alpha", ProjectTitle: "Rover", Category: models.CategoryHardware}
	stamp := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	data, err := RenderCalendarEvent(testSettings(), team, stamp)
	require.NoError(t, err)
	out := string(data)

	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "UID:t1@regdesk")
	assert.Contains(t, out, "STATUS:CONFIRMED")
	assert.Contains(t, out, "DTSTART:20260314T090000Z")
	assert.Contains(t, out, "DTEND:20260314T170000Z")
	assert.Contains(t, out, "Alpha - Rover")
	assert.Contains(t, out, "Main Hall")

	// One-way confirmation: no RSVP semantics, so no organizer is needed.
	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.NotContains(t, out, "METHOD:REQUEST")
	assert.NotContains(t, out, "ORGANIZER")
}

func TestRenderCalendarEvent_Defaults(t *testing.T) {
	team := &models.Team{ID: "t9", TeamName: "Zeta", ProjectTitle: "Drone"}

	data, err := RenderCalendarEvent(EventSettings{Date: "someday", Time: "whenever"}, team, time.Now())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "DTSTART:20260314T090000Z")
	assert.Contains(t, out, "DTEND:20260314T170000Z")
	assert.Contains(t, out, DefaultEventVenue)
}

func TestEventWindow(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		timeRange string
		start     string
		end       string
	}{
		{"range with dash", "2026-05-02", "10:00 - 18:30", "2026-05-02 10:00", "2026-05-02 18:30"},
		{"range with to", "May 2, 2026", "9:00 AM to 5:00 PM", "2026-05-02 09:00", "2026-05-02 17:00"},
		{"single start", "2026-05-02", "13:00", "2026-05-02 13:00", "2026-05-02 21:00"},
		{"inverted end", "2026-05-02", "18:00 - 09:00", "2026-05-02 18:00", "2026-05-03 02:00"},
		{"blank", "", "", "2026-03-14 09:00", "2026-03-14 17:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := EventSettings{Date: tt.date, Time: tt.timeRange}.EventWindow()
			if got := start.Format("2006-01-02 15:04"); got != tt.start {
				t.Errorf("start = %s, expected %s", got, tt.start)
			}
			if got := end.Format("2006-01-02 15:04"); got != tt.end {
				t.Errorf("end = %s, expected %s", got, tt.end)
			}
		})
	}
}

func TestCalendarFilename(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Alpha", "alpha-invite.ics"},
		{"Team Rocket 2", "team-rocket-2-invite.ics"},
		{"!!!", "team-invite.ics"},
	}
	for _, tt := range tests {
		if got := CalendarFilename(&models.Team{TeamName: tt.name}); got != tt.expected {
			t.Errorf("CalendarFilename(%q) = %q, expected %q", tt.name, got, tt.expected)
		}
	}
}
