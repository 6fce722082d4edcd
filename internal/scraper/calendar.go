package scraper

import (
	"encoding/json"
	"time"

	"ratewatch/internal/domain"
	"ratewatch/internal/price"
)

// calendarAPIPath is the path of the site's internal availability API.
// Responses whose URL contains it are intercepted, and the manual replay
// reconstructs a call against the same path.
const calendarAPIPath = "availability_calendar"

// tier identifies which acquisition strategy produced the availability
// calendar, in priority order: intercept, replay, DOM.
type tier int

const (
	tierNone tier = iota
	tierIntercept
	tierReplay
	tierDOM
)

func (t tier) String() string {
	switch t {
	case tierIntercept:
		return "intercept"
	case tierReplay:
		return "replay"
	case tierDOM:
		return "dom"
	default:
		return "none"
	}
}

// calendarPayload mirrors the JSON shape the site's internal API emits.
// The shape is not owned by us; any deviation parses to zero days.
type calendarPayload struct {
	Data struct {
		AvailabilityCalendar struct {
			Days []struct {
				Checkin           string `json:"checkin"`
				AvgPriceFormatted string `json:"avgPriceFormatted"`
				Available         bool   `json:"available"`
				MinLengthOfStay   int    `json:"minLengthOfStay"`
			} `json:"days"`
		} `json:"availabilityCalendar"`
	} `json:"data"`
}

// parseCalendarPayload decodes an availability API body into normalized
// calendar days plus the currency detected on the first priced day.
// Malformed bodies and unrecognized shapes yield no days, never an error.
func parseCalendarPayload(body []byte) ([]domain.CalendarDay, string) {
	var p calendarPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ""
	}

	var currency string
	days := make([]domain.CalendarDay, 0, len(p.Data.AvailabilityCalendar.Days))
	for _, d := range p.Data.AvailabilityCalendar.Days {
		checkin, ok := canonicalDate(d.Checkin)
		if !ok {
			continue
		}
		if currency == "" {
			currency = price.Currency(d.AvgPriceFormatted, "")
		}
		days = append(days, domain.CalendarDay{
			Checkin:   checkin,
			Price:     price.Parse(d.AvgPriceFormatted),
			Available: d.Available,
			MinStay:   d.MinLengthOfStay,
		})
	}
	return days, currency
}

// dateLayouts are the date renderings observed across the API and the
// calendar widget markup.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// canonicalDate normalizes a raw date string to YYYY-MM-DD regardless of
// which acquisition path produced it.
func canonicalDate(raw string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
