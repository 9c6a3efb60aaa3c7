package models

import (
	"time"
)

type Customer struct {
	ID          int64     `json:"customerID" gorm:"column:customer_id;primaryKey;autoIncrement"`
	UserID      *int64    `json:"userID" gorm:"column:user_id"`
	Email       string    `json:"email" gorm:"type:varchar(255);not null"`
	FirstName   string    `json:"firstName" gorm:"type:text"`
	LastName    string    `json:"lastName" gorm:"type:text"`
	GuestKey    string    `json:"guestKey" gorm:"type:text"`
	Registered  time.Time `json:"registered" gorm:"<-:create;not null"`
	OrderCount  int64     `json:"orderCount" gorm:"not null;default:0"`
	TotalSpent  float64   `json:"totalSpent" gorm:"not null;default:0"`
	LastUpdated time.Time `json:"lastUpdated" gorm:"not null"`
}

func (Customer) TableName() string {
	return "customers"
}

type CustomerMeta struct {
	ID         int64  `json:"metaID" gorm:"column:meta_id;primaryKey;autoIncrement"`
	CustomerID int64  `json:"customerID" gorm:"column:customer_id;not null"`
	MetaKey    string `json:"metaKey" gorm:"type:varchar(255);not null"`
	MetaValue  string `json:"metaValue" gorm:"type:text"`
}

func (CustomerMeta) TableName() string {
	return "customermeta"
}
