package entities

import "time"

// Settings is the single-row user configuration of the deployment.
type Settings struct {
	ID                   uint         `json:"-" gorm:"primaryKey"`
	Thresholds           ThresholdSet `json:"thresholds" gorm:"embedded"`
	GSMNumber            *string      `json:"gsmNumber" gorm:"column:gsm_number;size:32"`
	NotificationsEnabled bool         `json:"notificationsEnabled"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

func (Settings) TableName() string { return "settings" }

func DefaultSettings() Settings {
	return Settings{ID: 1, Thresholds: DefaultThresholds(), NotificationsEnabled: true}
}
