package models

import "time"

// Referral links a referring affiliate to a referred user.
// pending -> qualified | churned
type Referral struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AffiliateID    string     `gorm:"type:varchar(36);not null;index" json:"affiliate_id"`
	ReferredUserID string     `gorm:"type:varchar(36);not null;index" json:"referred_user_id"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_referral_due,priority:1" json:"status"`
	ChurnReason    string     `gorm:"type:varchar(32)" json:"churn_reason,omitempty"`
	QualifiesAt    time.Time  `gorm:"not null;index:idx_referral_due,priority:2" json:"qualifies_at"`
	QualifiedAt    *time.Time `json:"qualified_at,omitempty"`
	ClaimToken     *string    `gorm:"type:varchar(36)" json:"-"`
	ClaimedAt      *time.Time `json:"-"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Referral) TableName() string {
	return "referrals"
}

// Referral statuses
const (
	ReferralStatusPending   = "pending"
	ReferralStatusQualified = "qualified"
	ReferralStatusChurned   = "churned"
)

// Churn reasons
const (
	ChurnReasonNoSubscription        = "no_subscription"
	ChurnReasonSubscriptionCancelled = "subscription_cancelled"
)
