package gmaps

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	numberRegex   = regexp.MustCompile(`[\d.,]+`)
	nonDigitRegex = regexp.MustCompile(`\D`)
)

// ParseReviews extracts review records from a snapshot of the reviews
// panel. The snapshot is the concatenated outer html of the visible review
// cards, so selectors here are scoped per card.
func ParseReviews(html string) ([]Review, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: unparsable reviews snapshot: %v", ErrLayoutMismatch, err)
	}

	var reviews []Review
	doc.Find("div.jJc9Ad").Each(func(_ int, card *goquery.Selection) {
		username := strings.TrimSpace(card.Find("div.d4r55").First().Text())
		if username == "" {
			username = strings.TrimSpace(card.Find("[aria-label]").First().AttrOr("aria-label", ""))
		}

		reviews = append(reviews, Review{
			Username: username,
			Rating:   parseCardRating(card),
			Text:     strings.TrimSpace(card.Find("span.wiI7pd").First().Text()),
			PostedAt: strings.TrimSpace(card.Find("span.rsqaWe").First().Text()),
		})
	})
	return reviews, nil
}

// star widgets carry their value in an aria-label like "5 stars" or
// "5 estrellas"
func parseCardRating(card *goquery.Selection) int {
	label := card.Find("span.kvMYJc").First().AttrOr("aria-label", "")
	if label == "" {
		card.Find("[aria-label]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			aria := sel.AttrOr("aria-label", "")
			if strings.Contains(aria, "star") || strings.Contains(aria, "estrella") {
				label = aria
				return false
			}
			return true
		})
	}

	match := numberRegex.FindString(label)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0
	}
	rating := int(value)
	if rating < 0 || rating > 5 {
		return 0
	}
	return rating
}

func businessFromSnapshot(snapshot headerSnapshot) Business {
	return Business{
		Name:          strings.TrimSpace(snapshot.Name),
		TotalReviews:  parseReviewCount(snapshot.ReviewsText),
		AverageRating: parseAverageRating(snapshot.RatingText),
	}
}

// "(1,234)" or "1.234 reviews" -> 1234
func parseReviewCount(text string) int {
	digits := nonDigitRegex.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	count, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return count
}

// "4.6" or "4,6" -> 4.6
func parseAverageRating(text string) float64 {
	match := numberRegex.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil || value < 0 || value > 5 {
		return 0
	}
	return value
}
