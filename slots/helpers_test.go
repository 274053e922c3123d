package slots

import (
	"time"

	"github.com/coursebot/assistant/config"
)

func fixedNow() time.Time {
	return time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
}

func testRegistry() *config.Registry {
	return config.NewRegistry(config.Config{EnableRecurringCourses: true}, nil)
}
