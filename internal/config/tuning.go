package config

import (
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Tuning holds the knobs operators adjust without a redeploy: engine visit
// budgets, delivery pacing, and review shape. Loaded from an optional YAML
// overlay; zero values in the overlay keep the default.
type Tuning struct {
	ReviewMaxVisits  int `yaml:"review_max_visits"`
	GenMoveMaxVisits int `yaml:"genmove_max_visits"`
	EvalMaxVisits    int `yaml:"eval_max_visits"`

	KeyMoveCount int `yaml:"key_move_count"`
	CarouselSize int `yaml:"carousel_size"`

	CarouselDelayMs int `yaml:"carousel_delay_ms"`
	FallbackDelayMs int `yaml:"fallback_delay_ms"`

	ReviewETAMinutes int `yaml:"review_eta_minutes"`
}

// DefaultTuning returns the stock budgets and pacing.
func DefaultTuning() Tuning {
	return Tuning{
		ReviewMaxVisits:  400,
		GenMoveMaxVisits: 400,
		EvalMaxVisits:    100,
		KeyMoveCount:     20,
		CarouselSize:     10,
		CarouselDelayMs:  1000,
		FallbackDelayMs:  500,
		ReviewETAMinutes: 10,
	}
}

// LoadFile overlays values from a YAML file onto the receiver. Only fields
// the file actually sets (non-zero) replace the current values, so a partial
// overlay tunes one knob without restating the rest.
func (t *Tuning) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var overlay Tuning
	if err := yaml.NewDecoder(f).Decode(&overlay); err != nil {
		return err
	}

	t.merge(overlay)
	return nil
}

func (t *Tuning) merge(o Tuning) {
	if o.ReviewMaxVisits != 0 {
		t.ReviewMaxVisits = o.ReviewMaxVisits
	}
	if o.GenMoveMaxVisits != 0 {
		t.GenMoveMaxVisits = o.GenMoveMaxVisits
	}
	if o.EvalMaxVisits != 0 {
		t.EvalMaxVisits = o.EvalMaxVisits
	}
	if o.KeyMoveCount != 0 {
		t.KeyMoveCount = o.KeyMoveCount
	}
	if o.CarouselSize != 0 {
		t.CarouselSize = o.CarouselSize
	}
	if o.CarouselDelayMs != 0 {
		t.CarouselDelayMs = o.CarouselDelayMs
	}
	if o.FallbackDelayMs != 0 {
		t.FallbackDelayMs = o.FallbackDelayMs
	}
	if o.ReviewETAMinutes != 0 {
		t.ReviewETAMinutes = o.ReviewETAMinutes
	}
}
