package types

import "strings"

// ParseSortOrder converts a token like "created-desc" or "priority:asc" into
// list options. Unrecognised fields or directions fall back to the default
// ordering (created ascending).
func ParseSortOrder(raw string) (SortField, bool) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return SortByCreatedAt, false
	}

	field := raw
	dir := "asc"
	if idx := strings.IndexAny(raw, ":-"); idx >= 0 {
		field = strings.TrimSpace(raw[:idx])
		dir = strings.TrimSpace(raw[idx+1:])
	}

	sortField := mapSortField(field)
	if sortField == "" {
		return SortByCreatedAt, false
	}
	return sortField, dir == "desc" || dir == "descending"
}

// EncodeSortOrder converts list options back into the canonical token form.
func EncodeSortOrder(field SortField, desc bool) string {
	if field == "" {
		field = SortByCreatedAt
	}
	dir := "asc"
	if desc {
		dir = "desc"
	}
	return string(field) + "-" + dir
}

func mapSortField(raw string) SortField {
	switch raw {
	case "created", "created_at":
		return SortByCreatedAt
	case "updated", "updated_at":
		return SortByUpdatedAt
	case "priority":
		return SortByPriority
	case "status":
		return SortByStatus
	default:
		return ""
	}
}
