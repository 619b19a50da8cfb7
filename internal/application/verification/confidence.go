package verification

import "strings"

const (
	extractedFieldWeight = 25
	maxConfidence        = 100
)

// ExtractionConfidence weighs how many identifying fields an extraction produced.
func ExtractionConfidence(q *Query) int {
	score := 0
	for _, f := range []string{q.StudentName, q.RollNumber, q.CertificateNumber, q.Course} {
		if strings.TrimSpace(f) != "" {
			score += extractedFieldWeight
		}
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
