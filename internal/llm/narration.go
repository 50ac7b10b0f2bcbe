// Daily town diary: turns the day's notable events into a short prose entry.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/talgya/ai-town/internal/events"
)

const diaryEventLimit = 30

// DiaryEntry writes two or three sentences about the day from its events.
// Movement is skipped; only the most recent events are included.
func DiaryEntry(ctx context.Context, c Completer, day string, evs []events.Event) (string, error) {
	var notable []string
	for i := len(evs) - 1; i >= 0 && len(notable) < diaryEventLimit; i-- {
		if evs[i].Type == events.TypeMovement {
			continue
		}
		notable = append(notable, evs[i].Description)
	}
	if len(notable) == 0 {
		return "", nil
	}

	system := `You keep the diary of a small, friendly town. Summarize the day in 2-3 warm sentences.
Mention people by name. Do not invent events that are not listed.`

	var b strings.Builder
	fmt.Fprintf(&b, "%s. What happened:\n", day)
	for i := len(notable) - 1; i >= 0; i-- {
		b.WriteString("- " + notable[i] + "\n")
	}

	text, err := c.Complete(ctx, system, b.String(), 200)
	if err != nil {
		return "", fmt.Errorf("diary entry: %w", err)
	}
	return strings.TrimSpace(text), nil
}
