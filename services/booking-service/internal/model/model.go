package model

import (
	"time"
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Provider owns offerings and the shared capacity pool.
type Provider struct {
	ID                   string
	Timezone             string
	MaxConcurrentClients int
	// CalendarPath is the CalDAV calendar collection for busy intervals and sync; empty disables both.
	CalendarPath string
}

// Offering is the bookable unit.
type Offering struct {
	ID                 string
	ProviderID         string
	Name               string
	DurationMinutes    int
	BufferMinutes      int
	MinNoticeMinutes   int
	Capacity           int
	RecurrenceEnabled  bool
	MaxRecurrence      int
	ConcurrencyEnabled bool
	MaxConcurrency     int
	RequiresPayment    bool
	PriceMinor         int64
	Currency           string
}

func (o Offering) Duration() time.Duration {
	return time.Duration(o.DurationMinutes) * time.Minute
}

func (o Offering) Buffer() time.Duration {
	return time.Duration(o.BufferMinutes) * time.Minute
}

func (o Offering) MinNotice() time.Duration {
	return time.Duration(o.MinNoticeMinutes) * time.Minute
}

// WeeklyRule is an open window on a weekday; times are "HH:MM" in the provider's zone.
type WeeklyRule struct {
	DayOfWeek int
	StartTime string
	EndTime   string
}

// DateOverride supersedes the weekly rule for one provider-local date ("YYYY-MM-DD").
type DateOverride struct {
	ProviderID  string
	Date        string
	IsAvailable bool
	StartTime   string
	EndTime     string
}

type Client struct {
	Name  string
	Email string
	Phone string
}

type Reservation struct {
	ID                string
	OfferingID        string
	ProviderID        string
	StartTime         time.Time
	EndTime           time.Time
	Status            Status
	PaymentStatus     PaymentStatus
	PaymentHandle     string
	RecurrenceGroupID string
	Client            Client
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
}
