package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
)

// exportTimeLayout matches the ISO 8601 form used in export filenames
const exportTimeLayout = "2006-01-02T15:04:05.000Z"

// Export is a downloadable plain-text rendering of a transcript
type Export struct {
	Filename string
	Body     string
}

// ContentType is the MIME type of the export body
func (e Export) ContentType() string {
	return "text/plain; charset=utf-8"
}

// FormatExport renders messages as "[<timestamp>] <role>: <content>" blocks
// separated by a blank line.
func FormatExport(messages []domain.Message, now time.Time) Export {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s", m.Timestamp, m.Role, m.Content))
	}

	return Export{
		Filename: fmt.Sprintf("chat-export-%s.txt", now.UTC().Format(exportTimeLayout)),
		Body:     strings.Join(blocks, "\n\n"),
	}
}
