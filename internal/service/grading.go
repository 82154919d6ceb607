package service

import "math"

type gradeBand struct {
	cutoff float64
	letter string
	points float64
}

// gradeBands is ordered from the highest cutoff down; the first band whose
// cutoff is reached wins.
var gradeBands = []gradeBand{
	{97, "A+", 4.0},
	{93, "A", 4.0},
	{90, "A-", 3.7},
	{87, "B+", 3.3},
	{83, "B", 3.0},
	{80, "B-", 2.7},
	{77, "C+", 2.3},
	{73, "C", 2.0},
	{70, "C-", 1.7},
	{67, "D+", 1.3},
	{65, "D", 1.0},
}

// LetterGrade maps a numeric grade in [0,100] to its letter and 4.0-scale points.
func LetterGrade(numeric float64) (string, float64) {
	for _, band := range gradeBands {
		if numeric >= band.cutoff {
			return band.letter, band.points
		}
	}
	return "F", 0.0
}

func validNumericGrade(numeric float64) bool {
	return !math.IsNaN(numeric) && numeric >= 0 && numeric <= 100
}

func roundGPA(v float64) float64 {
	return math.Round(v*100) / 100
}
