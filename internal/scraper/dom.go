package scraper

import (
	"strings"

	"ratewatch/internal/domain"
	"ratewatch/internal/price"

	"github.com/PuerkitoBio/goquery"
)

// Calendar widget probes, in fallback order, for the last-resort DOM tier.
var calendarCellProbes = []string{
	`td[data-date]`,
	`li[data-checkin]`,
	`div[data-testid="calendar-day"]`,
}

// Price sub-element probes within a calendar cell.
var cellPriceProbes = []string{
	`.bui-calendar__price`,
	`span[data-testid="calendar-day-price"]`,
	`span.dayprice`,
}

// parseCalendarDOM scrapes nightly prices straight out of the rendered
// calendar markup. Cells missing either the date attribute or a price are
// skipped, not counted as errors. Availability is inferred from the
// absence of a "disabled" class marker.
func parseCalendarDOM(doc *goquery.Document) ([]domain.CalendarDay, string) {
	for _, probe := range calendarCellProbes {
		cells := doc.Find(probe)
		if cells.Length() == 0 {
			continue
		}

		var currency string
		var days []domain.CalendarDay
		cells.Each(func(_ int, cell *goquery.Selection) {
			raw, ok := cell.Attr("data-date")
			if !ok {
				raw, ok = cell.Attr("data-checkin")
			}
			if !ok {
				return
			}
			checkin, ok := canonicalDate(raw)
			if !ok {
				return
			}

			var priceText string
			for _, ps := range cellPriceProbes {
				if t := strings.TrimSpace(cell.Find(ps).First().Text()); t != "" {
					priceText = t
					break
				}
			}
			if priceText == "" {
				return
			}
			if currency == "" {
				currency = price.Currency(priceText, "")
			}

			class, _ := cell.Attr("class")
			days = append(days, domain.CalendarDay{
				Checkin:   checkin,
				Price:     price.Parse(priceText),
				Available: !strings.Contains(class, "disabled"),
			})
		})

		if len(days) > 0 {
			return days, currency
		}
	}
	return nil, ""
}
