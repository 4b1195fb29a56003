package evaluation

import (
	"context"
	"fmt"
	"strings"
)

// Heuristic scores submissions from surface features of the text.
// It is deterministic, needs no credentials, and is the default
// scorer for local and test runs.
type Heuristic struct{}

func (Heuristic) Score(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	hasComments := strings.Contains(text, "//") || strings.Contains(text, "/*")
	hasErrorHandling := strings.Contains(text, "try") ||
		strings.Contains(text, "catch") ||
		strings.Contains(text, "if")
	hasFunctions := strings.Contains(text, "function") || strings.Contains(text, "=>")
	long := len(text) > 200

	score := 60
	if hasComments {
		score += 10
	}
	if hasErrorHandling {
		score += 10
	}
	if hasFunctions {
		score += 10
	}
	if long {
		score += 10
	}
	if score > 95 {
		score = 95
	}

	strengths := []string{
		"Code demonstrates understanding of basic programming concepts",
		"Implementation follows a logical structure",
	}
	if hasComments {
		strengths = append(strengths, "Includes helpful comments for code documentation")
	} else {
		strengths = append(strengths, "Clean and concise code style")
	}
	if hasFunctions {
		strengths = append(strengths, "Proper use of functions for code organization")
	} else {
		strengths = append(strengths, "Direct and straightforward approach")
	}

	improvements := []string{
		"Consider adding more comprehensive error handling",
		"Could benefit from additional input validation",
		"Edge cases should be explicitly tested",
	}
	if !hasComments {
		improvements = append(improvements, "Adding comments would improve code maintainability")
	} else {
		improvements = append(improvements, "Variable naming could be more descriptive")
	}

	structure := "concise and direct"
	if long {
		structure = "well-structured and detailed"
	}
	robustness := "Adding more error handling would make this code more robust."
	if hasErrorHandling {
		robustness = "The inclusion of conditional logic shows attention to different scenarios."
	}

	feedback := fmt.Sprintf(
		"This solution demonstrates a solid understanding of the problem requirements. "+
			"The code is %s, showing good programming fundamentals. %s "+
			"Overall, this is a competent implementation that could be enhanced with "+
			"additional edge case handling and more comprehensive testing. "+
			"The approach taken is practical and shows promise for further development.",
		structure, robustness,
	)

	return Result{
		Score:        score,
		Strengths:    strengths,
		Improvements: improvements,
		Feedback:     feedback,
	}, nil
}
