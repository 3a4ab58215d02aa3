package export

import (
	"slices"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Summary aggregates a review list for reporting.
type Summary struct {
	Total         int
	AverageRating float64
	ByRegion      []RegionAverage
	Distribution  map[int]int // rating -> count
}

// RegionAverage is the review count and mean rating of one region.
type RegionAverage struct {
	Region        string
	Count         int
	AverageRating float64
}

// Summarize computes totals, averages and the rating distribution. Regions
// are listed in order of first appearance.
func Summarize(reviews []models.Review) Summary {
	s := Summary{Total: len(reviews), Distribution: make(map[int]int)}
	if len(reviews) == 0 {
		return s
	}

	sums := make(map[string]int)
	counts := make(map[string]int)
	var order []string
	total := 0
	for _, r := range reviews {
		total += r.Rating
		s.Distribution[r.Rating]++
		if _, ok := sums[r.Region]; !ok {
			order = append(order, r.Region)
		}
		sums[r.Region] += r.Rating
		counts[r.Region]++
	}
	s.AverageRating = float64(total) / float64(len(reviews))

	for _, region := range order {
		s.ByRegion = append(s.ByRegion, RegionAverage{
			Region:        region,
			Count:         counts[region],
			AverageRating: float64(sums[region]) / float64(counts[region]),
		})
	}
	return s
}

// Ratings returns the distinct ratings in the distribution, highest first.
func (s Summary) Ratings() []int {
	out := make([]int, 0, len(s.Distribution))
	for rating := range s.Distribution {
		out = append(out, rating)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}
