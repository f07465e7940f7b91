package models

import (
	"fmt"
	"strings"
	"time"
)

// IssueStatus represents the lifecycle stage of an issue.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "Pending"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
)

// Statuses returns every status in lifecycle order.
func Statuses() []IssueStatus {
	return []IssueStatus{IssueStatusPending, IssueStatusInProgress, IssueStatusResolved}
}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusResolved:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s IssueStatus) Terminal() bool { return s == IssueStatusResolved }

// ParseStatus returns the status with the exact given name.
func ParseStatus(v string) (IssueStatus, error) {
	s := IssueStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q (use: Pending, In Progress, Resolved)", v)
	}
	return s, nil
}

// UnmarshalText rejects unknown statuses at decode time. The empty string is
// accepted so that callers can report it as a missing field.
func (s *IssueStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IssueCategory is the fixed set of civic issue categories.
type IssueCategory string

const (
	CategoryRoads                IssueCategory = "Roads"
	CategoryUtilities            IssueCategory = "Utilities"
	CategoryWaste                IssueCategory = "Waste"
	CategoryParks                IssueCategory = "Parks"
	CategoryPublicTransportation IssueCategory = "Public Transportation"
	CategoryTrafficSignals       IssueCategory = "Traffic Signals"
	CategorySidewalks            IssueCategory = "Sidewalks"
	CategoryStreetCleaning       IssueCategory = "Street Cleaning"
	CategoryNoiseComplaints      IssueCategory = "Noise Complaints"
	CategoryOther                IssueCategory = "Other"
)

var categories = []IssueCategory{
	CategoryRoads,
	CategoryUtilities,
	CategoryWaste,
	CategoryParks,
	CategoryPublicTransportation,
	CategoryTrafficSignals,
	CategorySidewalks,
	CategoryStreetCleaning,
	CategoryNoiseComplaints,
	CategoryOther,
}

// Categories returns the categories in display order.
func Categories() []IssueCategory {
	out := make([]IssueCategory, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the fixed categories.
func (c IssueCategory) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory returns the category with the exact given name.
func ParseCategory(v string) (IssueCategory, error) {
	c := IssueCategory(v)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", v)
	}
	return c, nil
}

// UnmarshalText rejects unknown categories at decode time. The empty string is
// accepted so that callers can report it as a missing field.
func (c *IssueCategory) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = ""
		return nil
	}
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DateLayout is the day-precision ISO layout used for DateReported.
const DateLayout = "2006-01-02"

// Issue is a single reported civic problem.
type Issue struct {
	ID            int           `json:"id" yaml:"id"`
	Title         string        `json:"title" yaml:"title"`
	Description   string        `json:"description" yaml:"description"`
	Category      IssueCategory `json:"category" yaml:"category"`
	Status        IssueStatus   `json:"status" yaml:"status"`
	Location      string        `json:"location" yaml:"location"`
	DateReported  string        `json:"dateReported" yaml:"dateReported"`
	ReportedBy    string        `json:"reportedBy" yaml:"reportedBy"`
	AdminAssigned string        `json:"adminAssigned,omitempty" yaml:"adminAssigned,omitempty"` // empty while Pending
	Image         string        `json:"image,omitempty" yaml:"image,omitempty"`                 // URL or data URI
}

// Clone returns a copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	return &c
}

// Assigned reports whether an administrator is bound to the issue.
func (i *Issue) Assigned() bool { return i.AdminAssigned != "" }

// FormatDate renders t at day precision in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatCoordinates renders a GPS fix as a "lat, lon" location string.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// Tab is an admin console view over the collection.
type Tab string

const (
	TabAll        Tab = "all"
	TabPending    Tab = "pending"
	TabInProgress Tab = "in-progress"
	TabResolved   Tab = "resolved"
)

// ParseTab accepts the tab names case-insensitively; "" means all.
func ParseTab(v string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(v))); t {
	case "", TabAll:
		return TabAll, nil
	case TabPending, TabInProgress, TabResolved:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q (use: all, pending, in-progress, resolved)", v)
}

// Status returns the status a tab selects, or "" for all.
func (t Tab) Status() IssueStatus {
	switch t {
	case TabPending:
		return IssueStatusPending
	case TabInProgress:
		return IssueStatusInProgress
	case TabResolved:
		return IssueStatusResolved
	}
	return ""
}

// Stats counts issues by status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
}
