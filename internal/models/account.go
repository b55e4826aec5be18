package models

import "time"

// Account is a wallet added through the admin API. Active accounts are
// monitored with a ProfitHolding rule.
type Account struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Account   string    `gorm:"size:64;uniqueIndex;not null" json:"account"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Deleted   bool      `gorm:"default:false" json:"deleted"`
}

func (Account) TableName() string {
	return "accounts"
}
