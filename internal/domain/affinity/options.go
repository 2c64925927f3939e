package affinity

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithPatternWeight scales the overlap term.
func WithPatternWeight(w float64) Option {
	return func(s *Scorer) {
		if w >= 0 {
			s.patternWeight = w
		}
	}
}

// WithOverlapFloor sets the overlap term for workers sharing no pattern.
func WithOverlapFloor(f float64) Option {
	return func(s *Scorer) {
		if f >= 0 {
			s.overlapFloor = f
		}
	}
}

// WithLocalityBonus sets the bonus for a matching context tag.
func WithLocalityBonus(b float64) Option {
	return func(s *Scorer) {
		if b >= 0 {
			s.localityBonus = b
		}
	}
}

// WithReputationCoefficient scales the reputation term.
func WithReputationCoefficient(c float64) Option {
	return func(s *Scorer) {
		if c >= 0 {
			s.reputationCoefficient = c
		}
	}
}
