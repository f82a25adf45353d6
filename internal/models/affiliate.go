package models

import "time"

// Affiliate is a partner earning commissions on referred subscribers
type Affiliate struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	ReferralCode     string    `gorm:"type:varchar(32);uniqueIndex" json:"referral_code"`
	Status           string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CommissionRate   *float64  `json:"commission_rate,omitempty"`
	StripeAccountID  *string   `gorm:"type:varchar(64)" json:"stripe_account_id,omitempty"`
	TotalEarnedCents int64     `gorm:"not null;default:0" json:"total_earned_cents"`
	TotalPaidCents   int64     `gorm:"not null;default:0" json:"total_paid_cents"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Affiliate) TableName() string {
	return "affiliates"
}

// Affiliate statuses
const (
	AffiliateStatusPending   = "pending"
	AffiliateStatusApproved  = "approved"
	AffiliateStatusSuspended = "suspended"
)

// HasConnectedAccount reports whether a payment account is linked
func (a *Affiliate) HasConnectedAccount() bool {
	return a.StripeAccountID != nil && *a.StripeAccountID != ""
}
