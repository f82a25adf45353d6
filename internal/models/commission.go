package models

import "time"

// Commission is one qualified referral billing event. approved -> paid
type Commission struct {
	ID                   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AffiliateID          string     `gorm:"type:varchar(36);not null;index:idx_commission_unpaid,priority:1" json:"affiliate_id"`
	ReferralID           string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_commission_billing,priority:1" json:"referral_id"`
	BillingReference     string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_commission_billing,priority:2" json:"billing_reference"`
	StripeSubscriptionID string     `gorm:"type:varchar(64)" json:"stripe_subscription_id,omitempty"`
	GrossAmountCents     int64      `gorm:"not null" json:"gross_amount_cents"`
	Rate                 float64    `gorm:"not null" json:"rate"`
	AmountCents          int64      `gorm:"not null" json:"amount_cents"`
	Currency             string     `gorm:"type:varchar(8);not null" json:"currency"`
	Status               string     `gorm:"type:varchar(20);not null;index:idx_commission_unpaid,priority:2" json:"status"`
	PayoutID             *string    `gorm:"type:varchar(36);index" json:"payout_id,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Commission) TableName() string {
	return "commissions"
}

// Commission statuses
const (
	CommissionStatusApproved = "approved"
	CommissionStatusPaid     = "paid"
)
