package domain

// Scorer turns a correctness decision into points.
type Scorer interface {
	Score(key AnswerKey, correct bool, timeTakenSeconds float64) int
}

// FlatScorer awards the full point value for a correct answer regardless of time.
// Catalogs normalize missing point values; a key that still says 0 scores 0.
type FlatScorer struct{}

func (FlatScorer) Score(key AnswerKey, correct bool, _ float64) int {
	if !correct || key.PointValue < 0 {
		return 0
	}
	return key.PointValue
}
