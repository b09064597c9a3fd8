package plan

import (
	"fmt"
	"math/rand/v2"
	"regexp"

	"github.com/medtrack/adherence-engine/internal/clinic"
)

// NumberAttempts is the collision retry budget for prescription numbers.
const NumberAttempts = 5

// NewNumber generates a human-readable prescription number of the form
// RX-YYYYMMDD-NNNN. The date segment is the generation date, not the plan
// start date, and NNNN is a 4-digit value in [1000,9999]. Uniqueness is
// enforced by the caller against the store.
func NewNumber(today clinic.Date) string {
	return fmt.Sprintf("RX-%04d%02d%02d-%04d", today.Year, today.Month, today.Day, 1000+rand.IntN(9000))
}

var numberPattern = regexp.MustCompile(`^RX-\d{8}-[1-9]\d{3}$`)

// ValidNumber reports whether s has the prescription number shape.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}
