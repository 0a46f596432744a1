package stubapi

import (
	"fmt"
	"time"
)

var demoAuthors = []string{"ada", "grace", "linus", "barbara", "ken"}

// SeedDemo fills board with count submissions spaced one minute apart ending at now.
func SeedDemo(board *Board, count int, now time.Time) error {
	for index := 0; index < count; index++ {
		author := demoAuthors[index%len(demoAuthors)]
		_, err := board.AddSubmission(Submission{
			ID:        fmt.Sprintf("post-%02d", index+1),
			Title:     fmt.Sprintf("Demo submission %d", index+1),
			Author:    author,
			Link:      fmt.Sprintf("https://example.com/%s/%d", author, index+1),
			CreatedAt: now.Add(-time.Duration(count-index) * time.Minute).UTC(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
