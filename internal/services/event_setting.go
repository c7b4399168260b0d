package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/regdesk/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventSettings is an immutable snapshot of the event_settings table taken
// at the start of a request.
type EventSettings struct {
	Date         string         `json:"event_date"`
	Time         string         `json:"event_time"`
	Venue        string         `json:"event_venue"`
	Address      string         `json:"event_address"`
	PaymentQRURL string         `json:"payment_qr_url"`
	TZ           *time.Location `json:"-"`
}

func (s EventSettings) zone() *time.Location {
	if s.TZ == nil {
		return time.UTC
	}
	return s.TZ
}

// Location returns "venue, address", defaulting the venue.
func (s EventSettings) Location() string {
	venue := strings.TrimSpace(s.Venue)
	if venue == "" {
		venue = DefaultEventVenue
	}
	if addr := strings.TrimSpace(s.Address); addr != "" {
		return venue + ", " + addr
	}
	return venue
}

var dateLayouts = []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006", "2 January 2006", "02/01/2006"}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM", "15.04"}

func parseEventDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, value, loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseClock(value string) (time.Duration, bool) {
	value = strings.ToUpper(strings.TrimSpace(value))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
		}
	}
	return 0, false
}

// splitTimeRange accepts "09:00 - 17:00", "9:00 AM to 5:00 PM" or a single
// start time.
func splitTimeRange(value string) (string, string) {
	lower := strings.ToLower(value)
	if i := strings.Index(lower, " to "); i >= 0 {
		return value[:i], value[i+4:]
	}
	for _, sep := range []string{"–", "-"} {
		if i := strings.Index(value, sep); i >= 0 {
			return value[:i], value[i+len(sep):]
		}
	}
	return value, ""
}

// EventWindow resolves the start and end of the event. A blank or invalid
// date uses DefaultEventDate, a blank start uses DefaultEventStart and a
// missing or inverted end lasts DefaultEventLength.
func (s EventSettings) EventWindow() (time.Time, time.Time) {
	loc := s.zone()
	day, ok := parseEventDate(s.Date, loc)
	if !ok {
		day, _ = parseEventDate(DefaultEventDate, loc)
	}

	startRaw, endRaw := splitTimeRange(s.Time)
	startOffset, ok := parseClock(startRaw)
	if !ok {
		startOffset, _ = parseClock(DefaultEventStart)
	}
	start := day.Add(startOffset)

	end := start.Add(DefaultEventLength)
	if endOffset, ok := parseClock(endRaw); ok && endOffset > startOffset {
		end = day.Add(endOffset)
	}
	return start, end
}

type EventSettingService struct {
	db *gorm.DB
	tz *time.Location
}

func NewEventSettingService(db *gorm.DB, timezone string) *EventSettingService {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return &EventSettingService{db: db, tz: loc}
}

func (s *EventSettingService) Get(key string) (string, error) {
	var setting models.EventSetting
	if err := s.db.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *EventSettingService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// Set upserts a single key. Concurrent writers are last-write-wins.
func (s *EventSettingService) Set(key, value string) error {
	if !isEventSettingKey(key) {
		return fmt.Errorf("%w: unknown setting %q", ErrValidation, key)
	}
	setting := models.EventSetting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func isEventSettingKey(key string) bool {
	for _, k := range models.EventSettingKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (s *EventSettingService) All() (map[string]string, error) {
	var rows []models.EventSetting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(models.EventSettingKeys))
	for _, k := range models.EventSettingKeys {
		values[k] = models.DefaultEventSettings[k]
	}
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

// Snapshot reads every setting once for a workflow call.
func (s *EventSettingService) Snapshot() (EventSettings, error) {
	values, err := s.All()
	if err != nil {
		return EventSettings{}, err
	}
	return EventSettings{
		Date:         values[models.SettingEventDate],
		Time:         values[models.SettingEventTime],
		Venue:        values[models.SettingEventVenue],
		Address:      values[models.SettingEventAddress],
		PaymentQRURL: values[models.SettingPaymentQRURL],
		TZ:           s.tz,
	}, nil
}

type UpdateEventSettingsRequest struct {
	EventDate    *string `json:"event_date"`
	EventTime    *string `json:"event_time"`
	EventVenue   *string `json:"event_venue"`
	EventAddress *string `json:"event_address"`
	PaymentQRURL *string `json:"payment_qr_url"`
}

func (s *EventSettingService) Update(req *UpdateEventSettingsRequest) error {
	fields := []struct {
		key   string
		value *string
	}{
		{models.SettingEventDate, req.EventDate},
		{models.SettingEventTime, req.EventTime},
		{models.SettingEventVenue, req.EventVenue},
		{models.SettingEventAddress, req.EventAddress},
		{models.SettingPaymentQRURL, req.PaymentQRURL},
	}
	if req.EventDate != nil && strings.TrimSpace(*req.EventDate) != "" {
		if _, ok := parseEventDate(*req.EventDate, s.tz); !ok {
			return fmt.Errorf("%w: unrecognised event date %q", ErrValidation, *req.EventDate)
		}
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := s.Set(f.key, strings.TrimSpace(*f.value)); err != nil {
			return err
		}
	}
	return nil
}
