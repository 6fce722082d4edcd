package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"ratewatch/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// Probe lists for each metadata field, in fallback order. The site swaps
// its obfuscated class names between releases, so every field carries the
// stable data-testid selector first and older markup variants after it.
var (
	nameProbes = []string{
		`h2[data-testid="title"]`,
		`h2.pp-header__title`,
		`#hp_hotel_name`,
	}
	locationProbes = []string{
		`span[data-testid="address"]`,
		`.hp_address_subtitle`,
		`p.hp__hotel-address`,
	}
	ratingProbes = []string{
		`div[data-testid="review-score"]`,
		`.review-score-badge`,
		`#js--hp-gallery-scorecard`,
	}
	locationRatingProbes = []string{
		`span[data-testid="location-score"]`,
		`.location-score-badge`,
	}
	amenityProbes = []string{
		`div[data-testid="property-most-popular-facilities-wrapper"] li`,
		`.hotel-facilities__list li`,
		`div[data-testid="facility-badge"]`,
	}
)

var ratingPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// extractMetadata reads the hotel's descriptive fields from the rendered
// page. Every field degrades independently: a field whose probes all come
// up empty is simply left absent. This function never fails.
func extractMetadata(doc *goquery.Document, maxAmenities int) domain.ListingSnapshot {
	snap := domain.ListingSnapshot{
		Name:           firstText(doc, nameProbes),
		Location:       firstText(doc, locationProbes),
		Rating:         firstRating(doc, ratingProbes),
		LocationRating: firstRating(doc, locationRatingProbes),
	}

	for _, sel := range amenityProbes {
		nodes := doc.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		nodes.Each(func(_ int, s *goquery.Selection) {
			if maxAmenities > 0 && len(snap.Amenities) >= maxAmenities {
				return
			}
			if text := strings.TrimSpace(s.Text()); text != "" {
				snap.Amenities = append(snap.Amenities, text)
			}
		})
		break // first selector that yields any result set wins
	}

	return snap
}

// firstText returns the trimmed text of the first probe that matches a
// non-empty element.
func firstText(doc *goquery.Document, probes []string) string {
	for _, sel := range probes {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstRating extracts a 0-10 score from the first probe that yields a
// parseable number. Locale decimal commas are substituted before parsing;
// non-numeric text is discarded silently.
func firstRating(doc *goquery.Document, probes []string) *float64 {
	for _, sel := range probes {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		text = strings.ReplaceAll(text, ",", ".")
		m := ratingPattern.FindString(text)
		if m == "" {
			continue
		}
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || v < 0 || v > 10 {
			continue
		}
		return &v
	}
	return nil
}
