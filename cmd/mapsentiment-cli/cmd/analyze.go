package cmd

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"

	"mapsentiment-backend/lib/locator"
	"mapsentiment-backend/services/analysis"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	analyzeLimit int
	analyzeForce bool
	analyzeCsv   bool
)

func init() {
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 50, "Maximum number of reviews to collect.")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Bypass the cache and rescrape.")
	analyzeCmd.Flags().BoolVar(&analyzeCsv, "csv", false, "Write classified reviews to a csv file instead of printing a table.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <location url>",
	Short: "Scrapes, classifies and aggregates the reviews of a business location.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			log.Fatal(err)
		}
		svc, err := buildService(cfg)
		if err != nil {
			log.Fatal(err)
		}

		// resolved upfront so the csv file can carry the cache key
		loc, err := locator.NewResolver(cfg.LocatorOptions()).Resolve(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		result, err := svc.Analyze(cmd.Context(), analysis.AnalyzeRequest{
			LocationURL: loc.FinalURL,
			Limit:       analyzeLimit,
			ForceUpdate: analyzeForce,
		})
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%s\n", result.BusinessName)
		fmt.Printf("average rating: %.1f over %d reviews\n", result.AverageRating, result.TotalReviews)
		fmt.Printf(
			"sentiment: %d positive / %d negative / %d neutral",
			result.SentimentSummary["POS"],
			result.SentimentSummary["NEG"],
			result.SentimentSummary["NEU"],
		)
		if result.Cached {
			fmt.Print(" (cached)")
		}
		fmt.Println()

		if analyzeCsv {
			path := fmt.Sprintf("reviews_%s.csv", loc.CacheKey()[:8])
			err = writeCsv(path, result)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("wrote %d reviews to %s\n", len(result.Reviews), path)
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Username", "Rating", "Sentiment", "Confidence", "Review"})
		for _, review := range result.Reviews {
			t.AppendRow(table.Row{
				review.Username,
				review.Rating,
				review.Sentiment,
				fmt.Sprintf("%.2f", review.Confidence),
				truncate(review.ReviewText, 80),
			})
		}
		t.Render()
	},
}

func writeCsv(path string, result analysis.AnalysisResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	err = w.Write([]string{"business_name", "username", "rating", "review_text", "sentiment", "confidence"})
	if err != nil {
		return err
	}
	for _, review := range result.Reviews {
		err = w.Write([]string{
			result.BusinessName,
			review.Username,
			strconv.Itoa(review.Rating),
			review.ReviewText,
			string(review.Sentiment),
			strconv.FormatFloat(review.Confidence, 'f', 4, 64),
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
