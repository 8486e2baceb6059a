package request

// CreateBookingRequest is a single-day booking, or an overnight span when
// NextDate is set. Slot shape rules are checked by the booking service so the
// exact failure reason reaches the client.
type CreateBookingRequest struct {
	Date               string   `json:"date" validate:"required"`
	StartTimes         []string `json:"startTimes" validate:"max=24"`
	NextDate           string   `json:"nextDate,omitempty"`
	NextDateStartTimes []string `json:"nextDateStartTimes,omitempty" validate:"max=24"`
}

// IsOvernight reports whether the request carries a continuation day
func (r *CreateBookingRequest) IsOvernight() bool {
	return r.NextDate != "" || len(r.NextDateStartTimes) > 0
}

type AvailabilityRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type AdminBookingListRequest struct {
	DateFrom string `json:"dateFrom" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `json:"dateTo" validate:"omitempty,datetime=2006-01-02"`
	PaginatedRequest
}
