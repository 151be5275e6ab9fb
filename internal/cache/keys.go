package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(orgID uuid.UUID) string {
	return fmt.Sprintf("train:status:%s", orgID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

func SystemStatsKey(windowHours int) string {
	return fmt.Sprintf("stats:system:%dh", windowHours)
}
