package face

import "math"

// DefaultThreshold is the confidence a best match has to exceed.
const DefaultThreshold = 0.6

// Distance returns the Euclidean distance between two descriptors.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Score converts the distance into a confidence of 1 - d. It is not clamped,
// so descriptors further apart than 1 produce a negative confidence.
func Score(a, b Descriptor) float64 {
	return 1 - Distance(a, b)
}

// Candidate is an enrolled descriptor that can be matched.
type Candidate struct {
	UserID     string
	Descriptor Descriptor
}

// Match is the best scoring candidate.
type Match struct {
	UserID     string
	Confidence float64
	Accepted   bool
}

// BestMatch scores live against every candidate and returns the one with the
// highest confidence. Equal confidences go to the smallest user ID. The match
// is accepted only when its confidence is strictly above threshold. ok is
// false when there are no candidates.
func BestMatch(live Descriptor, candidates []Candidate, threshold float64) (m Match, ok bool) {
	for _, c := range candidates {
		conf := Score(live, c.Descriptor)
		if !ok || conf > m.Confidence || (conf == m.Confidence && c.UserID < m.UserID) {
			m = Match{UserID: c.UserID, Confidence: conf}
			ok = true
		}
	}
	if ok {
		m.Accepted = m.Confidence > threshold
	}
	return m, ok
}

// Percent converts a confidence to a percentage rounded to two decimals.
func Percent(confidence float64) float64 {
	return math.Round(confidence*100*100) / 100
}
