package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/regdesk/backend/internal/models"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	QRImageSize = 512

	QRInlineName        = "checkin-qr.png"
	DefaultEventStart   = "09:00"
	DefaultEventVenue   = "Venue to be announced"
	DefaultEventLength  = 8 * time.Hour
	calendarProductID   = "-//regdesk//Event Registration//EN"
	calendarUIDSuffix   = "@regdesk"
	calendarContentType = "text/calendar"
)

// DefaultEventDate is used when EVENT_DATE is blank or unparseable.
var DefaultEventDate = models.DefaultEventSettings[models.SettingEventDate]

// checkInToken field order is fixed; the encoding must stay byte-stable.
type checkInToken struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Category string `json:"category"`
	Verified bool   `json:"verified"`
}

// MakeCheckInToken encodes the scan payload for a verified team. The same
// team snapshot always yields the same bytes.
func MakeCheckInToken(team *models.Team) []byte {
	b, _ := json.Marshal(checkInToken{
		TeamID:   team.ID,
		TeamName: team.TeamName,
		Category: string(team.Category),
		Verified: true,
	})
	return b
}

// RenderQRImage encodes token as a PNG QR code with high error correction.
func RenderQRImage(token []byte) ([]byte, error) {
	if len(token) == 0 {
		return nil, fmt.Errorf("%w: empty check-in token", ErrArtifactGeneration)
	}
	png, err := qrcode.Encode(string(token), qrcode.High, QRImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: qr: %v", ErrArtifactGeneration, err)
	}
	return png, nil
}

// RenderCalendarEvent builds a single confirmed VEVENT for the team. Missing
// or unparseable settings fall back to defaults instead of failing.
func RenderCalendarEvent(settings EventSettings, team *models.Team, stamp time.Time) ([]byte, error) {
	start, end := settings.EventWindow()

	cal := ics.NewCalendar()
	cal.SetProductId(calendarProductID)
	cal.SetMethod(ics.MethodPublish)

	event := cal.AddEvent(team.ID + calendarUIDSuffix)
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(start.UTC())
	event.SetEndAt(end.UTC())
	event.SetSummary(fmt.Sprintf("%s - %s", team.TeamName, team.ProjectTitle))
	event.SetLocation(settings.Location())
	event.SetDescription(fmt.Sprintf("Team: %s\nProject: %s\nCategory: %s\nBring the check-in QR code from your confirmation email.",
		team.TeamName, team.ProjectTitle, team.Category))
	event.SetProperty(ics.ComponentPropertyStatus, "CONFIRMED")

	out := cal.Serialize()
	if out == "" {
		return nil, fmt.Errorf("%w: empty calendar", ErrArtifactGeneration)
	}
	return []byte(out), nil
}

// CalendarFilename returns "<team>-invite.ics" with the team name slugged.
func CalendarFilename(team *models.Team) string {
	var b strings.Builder
	for _, r := range strings.ToLower(team.TeamName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "team"
	}
	return name + "-invite.ics"
}
