package usecase

import (
	"fmt"
	"sort"
	"time"
)

// SlotReason is the machine-readable cause of a rejected slot request
type SlotReason string

const (
	ReasonEmptySlots                       SlotReason = "EmptySlots"
	ReasonInvalidDate                      SlotReason = "InvalidDate"
	ReasonInvalidSlotFormat                SlotReason = "InvalidSlotFormat"
	ReasonNonConsecutiveSlots              SlotReason = "NonConsecutiveSlots"
	ReasonInvalidSpanDate                  SlotReason = "InvalidSpanDate"
	ReasonInvalidCrossMidnightStart        SlotReason = "InvalidCrossMidnightStart"
	ReasonInvalidCrossMidnightContinuation SlotReason = "InvalidCrossMidnightContinuation"
	ReasonPastSlot                         SlotReason = "PastSlot"
	ReasonSlotConflict                     SlotReason = "SlotConflict"
)

const (
	lastSlotOfDay  = "23:00"
	firstSlotOfDay = "00:00"
)

type SlotError struct {
	Reason SlotReason
	Detail string
}

func (e *SlotError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func slotErr(reason SlotReason, format string, args ...any) *SlotError {
	return &SlotError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// SlotRequest is either a SingleDay or an OvernightSpan
type SlotRequest interface {
	days() []SingleDay
}

type SingleDay struct {
	Date       time.Time
	StartTimes []string
}

// OvernightSpan runs from the last hour of First into the early hours of Next
type OvernightSpan struct {
	First SingleDay
	Next  SingleDay
}

func (d SingleDay) days() []SingleDay     { return []SingleDay{d} }
func (s OvernightSpan) days() []SingleDay { return []SingleDay{s.First, s.Next} }

// Slot is one validated hour
type Slot struct {
	Date  time.Time
	Start string
	Hour  int
}

// End is the slot's end time; the 23:00 slot ends at 00:00
func (s Slot) End() string {
	return fmt.Sprintf("%02d:00", (s.Hour+1)%24)
}

// ValidatedSlots holds the sorted slots grouped per calendar day
type ValidatedSlots struct {
	Days [][]Slot
}

func (v ValidatedSlots) All() []Slot {
	var out []Slot
	for _, day := range v.Days {
		out = append(out, day...)
	}
	return out
}

func (v ValidatedSlots) First() Slot {
	return v.Days[0][0]
}

func (v ValidatedSlots) Last() Slot {
	last := v.Days[len(v.Days)-1]
	return last[len(last)-1]
}

func (v ValidatedSlots) Count() int {
	n := 0
	for _, day := range v.Days {
		n += len(day)
	}
	return n
}

// ParseDate accepts a calendar day in ISO form and pins it to UTC midnight
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, slotErr(ReasonInvalidDate, "%q is not a YYYY-MM-DD date", s)
	}
	return d, nil
}

// parseHour accepts only zero padded whole hours, "00:00" to "23:00"
func parseHour(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' || s[3] != '0' || s[4] != '0' {
		return 0, false
	}
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	if h > 23 {
		return 0, false
	}
	return h, true
}

// ValidateSlots checks the shape of a slot request. It does no I/O.
func ValidateSlots(req SlotRequest) (ValidatedSlots, error) {
	switch r := req.(type) {
	case SingleDay:
		day, err := validateDay(r)
		if err != nil {
			return ValidatedSlots{}, err
		}
		return ValidatedSlots{Days: [][]Slot{day}}, nil

	case OvernightSpan:
		if !r.Next.Date.Equal(r.First.Date.AddDate(0, 0, 1)) {
			return ValidatedSlots{}, slotErr(ReasonInvalidSpanDate, "%s must be the day after %s",
				r.Next.Date.Format(time.DateOnly), r.First.Date.Format(time.DateOnly))
		}

		first, err := validateDay(r.First)
		if err != nil {
			return ValidatedSlots{}, err
		}
		if last := first[len(first)-1]; last.Start != lastSlotOfDay {
			return ValidatedSlots{}, slotErr(ReasonInvalidCrossMidnightStart,
				"first day must end with the %s slot, got %s", lastSlotOfDay, last.Start)
		}

		if len(r.Next.StartTimes) == 0 {
			return ValidatedSlots{}, slotErr(ReasonInvalidCrossMidnightContinuation,
				"next day must start with the %s slot, got no slots", firstSlotOfDay)
		}
		next, err := validateDay(r.Next)
		if err != nil {
			return ValidatedSlots{}, err
		}
		if next[0].Start != firstSlotOfDay {
			return ValidatedSlots{}, slotErr(ReasonInvalidCrossMidnightContinuation,
				"next day must start with the %s slot, got %s", firstSlotOfDay, next[0].Start)
		}
		return ValidatedSlots{Days: [][]Slot{first, next}}, nil

	default:
		return ValidatedSlots{}, fmt.Errorf("unsupported slot request %T", req)
	}
}

func validateDay(d SingleDay) ([]Slot, error) {
	if len(d.StartTimes) == 0 {
		return nil, slotErr(ReasonEmptySlots, "no slots requested for %s", d.Date.Format(time.DateOnly))
	}

	times := append([]string(nil), d.StartTimes...)
	sort.Strings(times)

	slots := make([]Slot, len(times))
	for i, t := range times {
		hour, ok := parseHour(t)
		if !ok {
			return nil, slotErr(ReasonInvalidSlotFormat, "%q is not a whole hour in HH:00 form", t)
		}
		slots[i] = Slot{Date: d.Date, Start: t, Hour: hour}
	}

	for i := 1; i < len(slots); i++ {
		if slots[i].Hour != slots[i-1].Hour+1 {
			return nil, slotErr(ReasonNonConsecutiveSlots, "%s does not follow %s", slots[i].Start, slots[i-1].Start)
		}
	}

	return slots, nil
}
