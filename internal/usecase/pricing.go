package usecase

import (
	"time"

	"mahjong-booking/pkg/utils"
)

// SlotPrice is the snapshot stored on a booking row
type SlotPrice struct {
	Amount int64
	IsPeak bool
}

// PricingRules quotes one hourly slot. Implementations must be pure: the result
// is persisted at reservation time and never recomputed.
type PricingRules interface {
	Quote(date time.Time, hour int) SlotPrice
}

// PeakPricing charges the peak rate all weekend and from PeakStartHour until
// midnight on weekdays.
type PeakPricing struct {
	PeakPrice     int64
	OffPeakPrice  int64
	PeakStartHour int
}

func NewPeakPricing(config utils.PricingConfig) PeakPricing {
	return PeakPricing{
		PeakPrice:     config.PeakPrice,
		OffPeakPrice:  config.OffPeakPrice,
		PeakStartHour: config.PeakStartHour,
	}
}

func (p PeakPricing) Quote(date time.Time, hour int) SlotPrice {
	if p.isPeak(date, hour) {
		return SlotPrice{Amount: p.PeakPrice, IsPeak: true}
	}
	return SlotPrice{Amount: p.OffPeakPrice}
}

func (p PeakPricing) isPeak(date time.Time, hour int) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return hour >= p.PeakStartHour
}
