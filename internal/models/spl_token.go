package models

import "time"

// Monitor status values of a tracked mint.
const (
	MonitorStatusActive   = "active"
	MonitorStatusInactive = "inactive"
)

// SplToken is a mint a rule started tracking after a buy by a watched address.
type SplToken struct {
	Mint          string    `gorm:"primaryKey;size:64" json:"mint"`
	SmartAddress  string    `gorm:"size:64;not null;index" json:"smart_address"`
	MonitorStatus string    `gorm:"size:16;not null;default:active;index" json:"monitor_status"`
	StrategyName  string    `gorm:"size:128" json:"strategy_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SplToken) TableName() string {
	return "spl_token"
}
