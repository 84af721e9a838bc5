package persistence

import "strings"

// travelOrderColumns are the columns a travel list can be ordered by
var travelOrderColumns = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"travel_number": true,
	"description":   true,
	"begin_date":    true,
	"end_date":      true,
	"total_price":   true,
	"status":        true,
}

// orderClause builds an ORDER BY expression from client input.
// Columns outside allowed fall back to fallback, directions other than asc to DESC.
func orderClause(column, dir string, allowed map[string]bool, fallback string) string {
	column = strings.TrimSpace(column)
	if !allowed[column] {
		column = fallback
	}
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}
