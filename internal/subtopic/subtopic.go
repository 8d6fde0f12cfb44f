// Package subtopic splits a markdown topic summary into one record per "### " block.
package subtopic

import (
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

const heading = "### "

// Split returns one record per topic block, in document order. A summary with
// no usable block yields an empty slice.
func Split(summary string) []model.SubtopicRecord {
	records := []model.SubtopicRecord{}
	for _, block := range strings.Split(summary, "\n"+heading) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		firstLine, _, _ := strings.Cut(block, "\n")
		full := block
		if !strings.HasPrefix(block, "###") {
			full = heading + block
		}

		records = append(records, model.SubtopicRecord{
			MainTopic:    strings.TrimSpace(strings.ReplaceAll(firstLine, heading, "")),
			FullText:     full,
			SummaryIndex: len(records),
		})
	}
	return records
}
