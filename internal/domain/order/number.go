package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNumberAttempts bounds how many order numbers checkout generates before
// giving up with ErrOrderNumberExhausted.
const MaxNumberAttempts = 5

// NewNumber returns a human-readable order number of the form
// ORD-<unix millis>-<4 hex chars>.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return "ORD-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
