package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeyPoints caps the recommendation list shown in the UI and report.
	MaxKeyPoints = 6

	minKeyPointLen = 5
)

var (
	bulletPattern = regexp.MustCompile(`^(\*|-|\d+\.)`)
	markerPattern = regexp.MustCompile(`^[\s*\-\d.)•]+`)
)

// ExtractKeyPoints turns narrative text into at most MaxKeyPoints
// recommendations. Bulleted lines are preferred; prose lines are used only
// when no bullet survives the length filter.
func ExtractKeyPoints(text string) []string {
	var bullets, fallback []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		point := stripMarkers(line)
		if utf8.RuneCountInString(point) < minKeyPointLen {
			continue
		}

		fallback = append(fallback, point)
		if bulletPattern.MatchString(line) {
			bullets = append(bullets, point)
		}
	}

	points := fallback
	if len(bullets) > 0 {
		points = bullets
	}
	if len(points) > MaxKeyPoints {
		points = points[:MaxKeyPoints]
	}
	return points
}

func stripMarkers(line string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(line, ""))
}
