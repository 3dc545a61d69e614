package models

import (
	"time"
)

// Membership is the commercial tier of a user.
type Membership string

const (
	MembershipFree Membership = "free"
	MembershipPro  Membership = "pro"
)

// IsValid reports whether m is one of the known membership tiers.
func (m Membership) IsValid() bool {
	switch m {
	case MembershipFree, MembershipPro:
		return true
	}
	return false
}

// UserStatus is the account lifecycle state of a user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBanned   UserStatus = "banned"
)

// IsValid reports whether s is one of the known account states.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusBanned:
		return true
	}
	return false
}

// User is the application-side record for an externally authenticated identity.
// Identity is the identifier issued by the identity provider and never changes.
type User struct {
	Identity              string     `json:"identity" db:"identity"`
	Email                 string     `json:"email" db:"email"`
	Username              string     `json:"username" db:"username"`
	Membership            Membership `json:"membership" db:"membership"`
	Status                UserStatus `json:"status" db:"status"`
	BillingCustomerID     *string    `json:"billing_customer_id,omitempty" db:"billing_customer_id"`
	BillingSubscriptionID *string    `json:"billing_subscription_id,omitempty" db:"billing_subscription_id"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// UserUpdate is a partial set of user attributes. Nil fields are left unchanged.
// For the billing fields a pointer to "" clears the stored value.
type UserUpdate struct {
	Email                 *string     `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Username              *string     `json:"username,omitempty" validate:"omitempty,min=1,max=255"`
	Membership            *Membership `json:"membership,omitempty" validate:"omitempty,membership"`
	Status                *UserStatus `json:"status,omitempty" validate:"omitempty,user_status"`
	BillingCustomerID     *string     `json:"billing_customer_id,omitempty" validate:"omitempty,max=255"`
	BillingSubscriptionID *string     `json:"billing_subscription_id,omitempty" validate:"omitempty,max=255"`
}

// IsEmpty reports whether the update carries no attributes.
func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil && u.Username == nil && u.Membership == nil &&
		u.Status == nil && u.BillingCustomerID == nil && u.BillingSubscriptionID == nil
}

// CreateUserRequest is the administrative create payload.
type CreateUserRequest struct {
	Identity              string     `json:"identity" yaml:"identity" validate:"required,max=255"`
	Email                 string     `json:"email" yaml:"email" validate:"omitempty,email,max=320"`
	Username              string     `json:"username" yaml:"username" validate:"required,max=255"`
	Membership            Membership `json:"membership,omitempty" yaml:"membership" validate:"omitempty,membership"`
	Status                UserStatus `json:"status,omitempty" yaml:"status" validate:"omitempty,user_status"`
	BillingCustomerID     *string    `json:"billing_customer_id,omitempty" yaml:"billing_customer_id" validate:"omitempty,max=255"`
	BillingSubscriptionID *string    `json:"billing_subscription_id,omitempty" yaml:"billing_subscription_id" validate:"omitempty,max=255"`
}

// ToUser converts the request into a user record ready for insertion.
func (r CreateUserRequest) ToUser() *User {
	return &User{
		Identity:              r.Identity,
		Email:                 r.Email,
		Username:              r.Username,
		Membership:            r.Membership,
		Status:                r.Status,
		BillingCustomerID:     r.BillingCustomerID,
		BillingSubscriptionID: r.BillingSubscriptionID,
	}
}

// Profile carries the attributes an identity provider knows about a user.
// Empty values mean the provider did not supply them.
type Profile struct {
	Emails      []string
	Username    string
	DisplayName string
}
