package domain

import (
	"strings"
	"time"
)

// OwnerKindCustomer is the owner namespace of the customer metadata table.
const OwnerKindCustomer = "customer"

// Customer is one row of the customer record store.
type Customer struct {
	ID          int64     `json:"customerID"`
	UserID      *int64    `json:"userID,omitempty"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	GuestKey    string    `json:"guestKey,omitempty"`
	Registered  time.Time `json:"registered"`
	OrderCount  int64     `json:"orderCount"`
	TotalSpent  float64   `json:"totalSpent"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (c Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// IsRegistered reports whether the customer is linked to a host account.
func (c Customer) IsRegistered() bool {
	return c.UserID != nil && *c.UserID > 0
}

func (c Customer) Type() CustomerType {
	if c.IsRegistered() {
		return CustomerTypeRegistered
	}
	return CustomerTypeGuest
}

// CustomerDraft is the input of a customer insert.
type CustomerDraft struct {
	UserID    *int64
	Email     string
	FirstName string
	LastName  string
	GuestKey  string
}

// CustomerUpdate carries the mutable profile fields. Nil fields are left as is.
type CustomerUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

func (u CustomerUpdate) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil
}

type CustomerType string

const (
	CustomerTypeRegistered CustomerType = "registered"
	CustomerTypeGuest      CustomerType = "guest"
)

type IdentityKind int

const (
	IdentityNone IdentityKind = iota
	IdentityByUser
	IdentityByEmail
)

// Identity selects a customer either by linked user id or by email. Kind
// says which field is meaningful; the zero Identity selects nothing.
type Identity struct {
	Kind   IdentityKind
	UserID int64
	Email  string
}

// UserIdentity selects by user id. A non-positive id means the current caller.
func UserIdentity(userID int64) Identity {
	return Identity{Kind: IdentityByUser, UserID: userID}
}

func EmailIdentity(email string) Identity {
	return Identity{Kind: IdentityByEmail, Email: email}
}

func (i Identity) IsUser() bool {
	return i.Kind == IdentityByUser
}

func (i Identity) IsEmail() bool {
	return i.Kind == IdentityByEmail
}

// LabeledMeta is a meta key with its display label and values.
type LabeledMeta struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Values  []string `json:"values"`
	Default bool     `json:"default"`
}

// CustomerProfile is the detail view of a customer.
type CustomerProfile struct {
	Customer     Customer      `json:"customer"`
	Name         string        `json:"name"`
	Type         CustomerType  `json:"type"`
	BillingPhone string        `json:"billingPhone"`
	Meta         []LabeledMeta `json:"meta"`
}
