package domain

import "strings"

// SortField is a column the customer list may be ordered by.
type SortField string

const (
	SortByID         SortField = "customer_id"
	SortByFirstName  SortField = "first_name"
	SortByLastName   SortField = "last_name"
	SortByName       SortField = "name"
	SortByEmail      SortField = "email"
	SortByRegistered SortField = "registered"
	SortByOrderCount SortField = "order_count"
)

var sortAliases = map[string]SortField{
	"customer_id":     SortByID,
	"id":              SortByID,
	"first_name":      SortByFirstName,
	"last_name":       SortByLastName,
	"name":            SortByName,
	"email":           SortByEmail,
	"registered":      SortByRegistered,
	"date_registered": SortByRegistered,
	"order_count":     SortByOrderCount,
	"purchase_count":  SortByOrderCount,
}

// ParseSortField maps an admin column name onto the closed set of sortable
// fields. An empty string selects customer_id.
func ParseSortField(s string) (SortField, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SortByID, nil
	}
	f, ok := sortAliases[s]
	if !ok {
		return "", ErrInvalidSort
	}
	return f, nil
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	default:
		return "", ErrInvalidSort
	}
}

// ListQuery selects one page of customers.
type ListQuery struct {
	Offset    int
	Limit     int
	OrderBy   SortField
	Direction SortDirection
}

// Page builds a ListQuery for a 1-based page number.
func Page(page, perPage int, orderBy SortField, dir SortDirection) ListQuery {
	if page < 1 {
		page = 1
	}
	return ListQuery{
		Offset:    (page - 1) * perPage,
		Limit:     perPage,
		OrderBy:   orderBy,
		Direction: dir,
	}
}

// CustomerPage is a page of customers with the total row count.
type CustomerPage struct {
	Items []Customer `json:"items"`
	Total int64      `json:"total"`
}
