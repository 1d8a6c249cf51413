package orders

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateOrderNumber synthesizes a human-readable order number in the
// form ORD-YYMMDD-NNNN. Collisions are possible and handled by the
// unique index plus a retry at insert time.
func GenerateOrderNumber(now time.Time) string {
	datePart := now.UTC().Format("060102")
	randomPart := 1000 + rand.Intn(9000)
	return fmt.Sprintf("ORD-%s-%d", datePart, randomPart)
}
