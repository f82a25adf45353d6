package models

import "time"

// Payout aggregates an affiliate's approved commissions into one transfer.
// processing -> completed | failed
type Payout struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AffiliateID      string     `gorm:"type:varchar(36);not null;index" json:"affiliate_id"`
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`
	Currency         string     `gorm:"type:varchar(8);not null" json:"currency"`
	CommissionCount  int        `gorm:"not null" json:"commission_count"`
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason    string     `gorm:"type:text" json:"failure_reason,omitempty"`
	StripeTransferID *string    `gorm:"type:varchar(64)" json:"stripe_transfer_id,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name
func (Payout) TableName() string {
	return "payouts"
}

// Payout statuses
const (
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)
