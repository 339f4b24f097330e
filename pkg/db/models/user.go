package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// User is the canonical marketplace account. A user can be found by either of
// its two referral code slots.
type User struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string         `gorm:"type:text;not null;uniqueIndex"`
	FirstName          string         `gorm:"column:first_name;not null"`
	LastName           string         `gorm:"column:last_name;not null"`
	Role               enums.UserRole `gorm:"column:role;not null"`
	ReferralCode       string         `gorm:"column:referral_code;not null;uniqueIndex"`
	CustomReferralCode *string        `gorm:"column:custom_referral_code;uniqueIndex"`
	StripeAccountID    *string        `gorm:"column:stripe_account_id"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
