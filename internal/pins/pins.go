// Package pins assigns pin numbers within a scope.
package pins

import (
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
)

// Next returns the pin number for a new comment in key: one more than the
// highest number in use there, or 1 for an empty scope. Numbers freed by
// deletions are never reused.
func Next(comments []models.Comment, key models.ScopeKey) int {
	highest := 0
	for i := range comments {
		if !scope.Matches(&comments[i], key) {
			continue
		}
		if comments[i].PinNumber > highest {
			highest = comments[i].PinNumber
		}
	}
	return highest + 1
}
