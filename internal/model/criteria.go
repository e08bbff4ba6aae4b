package model

import "time"

// FilterCriteria is the set of user-chosen constraints applied to a record set.
// Level and Service use All as "no constraint"; an empty Search and nil dates
// are likewise unconstrained.
type FilterCriteria struct {
	Level     string     `json:"level"`
	Service   string     `json:"service"`
	Search    string     `json:"search"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// DefaultCriteria returns criteria that match every record.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{Level: All, Service: All}
}

// IsDefault reports whether c leaves every predicate disabled.
func (c FilterCriteria) IsDefault() bool {
	return (c.Level == All || c.Level == "") &&
		(c.Service == All || c.Service == "") &&
		c.Search == "" &&
		c.StartDate == nil &&
		c.EndDate == nil
}
