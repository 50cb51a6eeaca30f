package advisor

import "github.com/c360studio/finadvisor/extract"

// ratingScore maps a textual rating to its numeric value. Unrecognized
// ratings score as Adeguato.
func ratingScore(rating string) int {
	switch rating {
	case extract.RatingOttimale:
		return 3
	case extract.RatingInadeguato:
		return 1
	default:
		return 2
	}
}

// OverallRating averages the five evaluation points and buckets the result:
// above 2.5 Ottimale, above 1.5 Adeguato, else Inadeguato.
func OverallRating(points []extract.EvaluationPoint) string {
	if len(points) == 0 {
		return extract.RatingAdeguato
	}
	sum := 0
	for _, p := range points {
		sum += ratingScore(p.Rating)
	}
	average := float64(sum) / float64(len(points))
	switch {
	case average > 2.5:
		return extract.RatingOttimale
	case average > 1.5:
		return extract.RatingAdeguato
	default:
		return extract.RatingInadeguato
	}
}
