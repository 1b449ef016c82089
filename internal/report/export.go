package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spigell/project-matcher/internal/store"
)

// Separator is the CSV field delimiter of exports.
const Separator = ';'

const createdLayout = "2006-01-02 15:04:05"

var header = []string{
	"title", "company", "keywords", "description", "created_date", "link",
	"is_top_project", "is_endcustomer", "score", "explanation",
}

// WriteCSV writes rows ordered by score, highest first. Explanation lines are
// joined with newlines inside a single quoted field.
func WriteCSV(w io.Writer, rows []store.MatchedProject) error {
	sorted := make([]store.MatchedProject, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	cw := csv.NewWriter(w)
	cw.Comma = Separator

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, row := range sorted {
		created := ""
		if row.Project.HasCreated() {
			created = row.Project.CreatedAt.UTC().Format(createdLayout)
		}

		record := []string{
			row.Project.Title,
			row.Project.Company,
			row.Project.Keywords,
			row.Project.Description,
			created,
			row.Project.Link,
			strconv.FormatBool(row.Project.IsFeatured),
			strconv.FormatBool(row.Project.IsEndCustomer),
			strconv.FormatFloat(row.Score, 'f', 2, 64),
			strings.Join(row.Explanation, "\n"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", row.ProjectID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
