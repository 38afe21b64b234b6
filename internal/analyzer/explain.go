package analyzer

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// explainQueries issues EXPLAIN QUERY PLAN for each distinct SQL text named
// in readRowCountsByQuery (spec §4.4 step 4) and returns sqlText -> formatted
// plan text. A per-query failure becomes a warning rather than aborting the
// whole analyze run.
func explainQueries(db *sql.DB, readRowCountsByQuery map[string]map[string]int) (map[string]string, []string) {
	if len(readRowCountsByQuery) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	var queries []string
	for _, byQuery := range readRowCountsByQuery {
		for q := range byQuery {
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			queries = append(queries, q)
		}
	}
	sort.Strings(queries)

	plans := make(map[string]string, len(queries))
	var warnings []string
	for _, q := range queries {
		placeholders := strings.Count(q, "?")
		args := make([]interface{}, placeholders)
		rows, err := db.Query("EXPLAIN QUERY PLAN "+q, args...)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("explain %q: %v", q, err))
			continue
		}
		text, err := formatPlan(rows)
		rows.Close()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("explain %q: %v", q, err))
			continue
		}
		plans[q] = text
	}
	return plans, warnings
}

func formatPlan(rows *sql.Rows) (string, error) {
	var lines []string
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%d|%d|%s", id, parent, detail))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
