package models

import "time"

// Event setting keys consumed by the public site and the verification
// workflow.
const (
	SettingEventDate    = "EVENT_DATE"
	SettingEventTime    = "EVENT_TIME"
	SettingEventVenue   = "EVENT_VENUE"
	SettingEventAddress = "EVENT_ADDRESS"
	SettingPaymentQRURL = "PAYMENT_QR_URL"
)

// EventSettingKeys lists every key an admin may edit.
var EventSettingKeys = []string{
	SettingEventDate,
	SettingEventTime,
	SettingEventVenue,
	SettingEventAddress,
	SettingPaymentQRURL,
}

// EventSetting is a globally shared key/value pair. Writes are
// last-write-wins.
type EventSetting struct {
	Key       string    `gorm:"column:key;primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EventSetting) TableName() string { return "event_settings" }
