package scraper

import (
	"testing"

	"ratewatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCalendarPayload(t *testing.T) {
	body := []byte(`{
		"data": {
			"availabilityCalendar": {
				"days": [
					{"checkin": "2024-01-01", "avgPriceFormatted": "€150", "available": true},
					{"checkin": "2024-01-02", "avgPriceFormatted": "€1.2K", "available": false, "minLengthOfStay": 2}
				]
			}
		}
	}`)

	days, currency := parseCalendarPayload(body)
	require.Len(t, days, 2)
	assert.Equal(t, "EUR", currency)
	assert.Equal(t, domain.CalendarDay{Checkin: "2024-01-01", Price: 150, Available: true}, days[0])
	assert.Equal(t, domain.CalendarDay{Checkin: "2024-01-02", Price: 1200, Available: false, MinStay: 2}, days[1])
}

// Deviations from the expected shape mean "no data", never an error.
func TestParseCalendarPayloadDeviations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>block page</html>`},
		{"empty object", `{}`},
		{"missing calendar", `{"data": {}}`},
		{"days not a list", `{"data": {"availabilityCalendar": {"days": 42}}}`},
		{"unparseable dates", `{"data": {"availabilityCalendar": {"days": [{"checkin": "soon", "avgPriceFormatted": "€1"}]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, _ := parseCalendarPayload([]byte(tt.body))
			assert.Empty(t, days)
		})
	}
}

func TestParseCalendarPayloadNormalizesDates(t *testing.T) {
	body := []byte(`{"data": {"availabilityCalendar": {"days": [
		{"checkin": "2024-03-05T00:00:00", "avgPriceFormatted": "€80", "available": true}
	]}}}`)

	days, _ := parseCalendarPayload(body)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-03-05", days[0].Checkin)
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2024-01-31", "2024-01-31", true},
		{"2024-01-31T10:30:00Z", "2024-01-31", true},
		{"31/01/2024", "2024-01-31", true},
		{"tomorrow", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := canonicalDate(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}
