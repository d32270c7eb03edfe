package analysis

import (
	"math"

	"mapsentiment-backend/lib/scrapers/gmaps"
	"mapsentiment-backend/lib/sentiment"
)

// ReviewRecord is one classified review as returned to callers. Records
// are immutable once classified and keep their extraction order.
type ReviewRecord struct {
	Username   string          `json:"username"`
	Rating     int             `json:"rating"`
	ReviewText string          `json:"review_text"`
	Sentiment  sentiment.Label `json:"sentiment"`
	Confidence float64         `json:"confidence"`
}

// AnalysisResult is the unit handed back to callers and persisted to the
// cache store.
type AnalysisResult struct {
	BusinessName     string                  `json:"business_name"`
	TotalReviews     int                     `json:"total_reviews"`
	AverageRating    float64                 `json:"average_rating"`
	SentimentSummary map[sentiment.Label]int `json:"sentiment_summary"`
	Reviews          []ReviewRecord          `json:"reviews"`
	Cached           bool                    `json:"cached"`
}

// Aggregate combines scraped metadata with classified reviews into the
// final result. Deterministic: identical inputs produce identical output.
// scores must be positionally aligned with reviews.
func Aggregate(business gmaps.Business, reviews []gmaps.Review, scores []sentiment.Result) AnalysisResult {
	summary := map[sentiment.Label]int{
		sentiment.Positive: 0,
		sentiment.Negative: 0,
		sentiment.Neutral:  0,
	}

	records := make([]ReviewRecord, 0, len(reviews))
	for i, review := range reviews {
		score := scores[i]
		summary[score.Label]++
		records = append(records, ReviewRecord{
			Username:   review.Username,
			Rating:     review.Rating,
			ReviewText: review.Text,
			Sentiment:  score.Label,
			Confidence: score.Confidence,
		})
	}

	return AnalysisResult{
		BusinessName:     business.Name,
		TotalReviews:     business.TotalReviews,
		AverageRating:    averageRating(business, reviews),
		SentimentSummary: summary,
		Reviews:          records,
		Cached:           false,
	}
}

// scraped header metadata wins, the mean of extracted ratings is only a
// fallback when the header carried no rating
func averageRating(business gmaps.Business, reviews []gmaps.Review) float64 {
	if business.AverageRating > 0 {
		return business.AverageRating
	}

	total := 0
	rated := 0
	for _, review := range reviews {
		if review.Rating > 0 {
			total += review.Rating
			rated++
		}
	}
	if rated == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(rated)*10) / 10
}
