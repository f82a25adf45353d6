package notify

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

const payoutEmailHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1a1a1a;">
  <h2>Your affiliate payout is on its way</h2>
  <p>Hi %s,</p>
  <p>We have sent <strong>%s</strong> for %d commission(s) to your connected account.</p>
  <p>Payout reference: %s</p>
  <p><a href="%s">View your affiliate dashboard</a></p>
</body>
</html>`

// Notifier records in-app notifications and sends the matching email
type Notifier struct {
	db           *gorm.DB
	mailer       Mailer
	dashboardURL string
}

// NewNotifier creates a notifier
func NewNotifier(db *gorm.DB, mailer Mailer, dashboardURL string) *Notifier {
	return &Notifier{db: db, mailer: mailer, dashboardURL: dashboardURL}
}

// FormatAmount renders minor units as a currency amount, e.g. 12345 usd -> "USD 123.45"
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, strings.ToUpper(currency), cents/100, cents%100)
}

// PayoutCompleted stores the in-app notification and emails the affiliate.
// The notification row is written first; an email failure is returned but does not undo it.
func (n *Notifier) PayoutCompleted(ctx context.Context, user *models.User, payout *models.Payout) error {
	amount := FormatAmount(payout.AmountCents, payout.Currency)

	notification := &models.Notification{
		UserID:  user.ID,
		Type:    models.NotificationTypePayout,
		Title:   "Affiliate payout sent",
		Message: fmt.Sprintf("%s for %d commission(s) has been transferred to your account.", amount, payout.CommissionCount),
		Link:    n.dashboardURL,
	}
	if err := n.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	name := user.FullName
	if name == "" {
		name = "there"
	}

	return n.mailer.Send(ctx, Email{
		ToEmail: user.Email,
		ToName:  user.FullName,
		Subject: fmt.Sprintf("Your affiliate payout of %s has been sent", amount),
		PlainText: fmt.Sprintf("Hi %s,\n\nWe have sent %s for %d commission(s) to your connected account.\nPayout reference: %s\n\n%s",
			name, amount, payout.CommissionCount, payout.ID, n.dashboardURL),
		HTML: fmt.Sprintf(payoutEmailHTML, name, amount, payout.CommissionCount, payout.ID, n.dashboardURL),
	})
}

// Unread returns a user's unread notifications, newest first
func (n *Notifier) Unread(userID string, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	query := n.db.Where(map[string]interface{}{"user_id": userID, "read": false}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}
