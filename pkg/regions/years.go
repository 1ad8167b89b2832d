package regions

import "fmt"

// YearRange is an inclusive, contiguous range of archive years
type YearRange struct {
	From int `yaml:"from" default:"2014"`
	To   int `yaml:"to" default:"2023"`
}

// Validate checks the range is set and ordered
func (y YearRange) Validate() error {
	if y.From == 0 || y.To == 0 {
		return ErrYearRangeUnspecified
	}

	if y.From > y.To {
		return fmt.Errorf("%w: %d > %d", ErrInvalidYearRange, y.From, y.To)
	}

	return nil
}

// Years lists the range in ascending order
func (y YearRange) Years() []int {
	if y.From > y.To {
		return nil
	}

	out := make([]int, 0, y.To-y.From+1)
	for year := y.From; year <= y.To; year++ {
		out = append(out, year)
	}

	return out
}

// Contains reports whether year lies within the range
func (y YearRange) Contains(year int) bool {
	return year >= y.From && year <= y.To
}
