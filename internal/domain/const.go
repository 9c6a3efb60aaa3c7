package domain

import "time"

type ctxKey string

const RequesterIdCtxKey ctxKey = "ca-requesterId"

const RoleCustomer = "customer"

const (
	ChannelCustomerEvents = "customeradmin.customers"
	ChannelAccountRole    = "customeradmin.account.role"
)

type EventType string

const (
	EventCustomerCreated EventType = "customer.created"
	EventCustomerUpdated EventType = "customer.updated"
	EventMetaUpdated     EventType = "customer.meta.updated"
	EventMetaDeleted     EventType = "customer.meta.deleted"
	EventRoleChanged     EventType = "account.role.changed"
)

// CustomerEvent is published on redis whenever a customer changes.
type CustomerEvent struct {
	Type       EventType `json:"type"`
	CustomerID int64     `json:"customerID,omitempty"`
	UserID     int64     `json:"userID,omitempty"`
	Key        string    `json:"key,omitempty"`
	Role       string    `json:"role,omitempty"`
	At         time.Time `json:"at"`
}
