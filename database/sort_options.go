package database

const (
	SortUploadDesc = "upload_desc"
	SortUploadAsc  = "upload_asc"
	SortNameAsc    = "name_asc"
	SortNameNat    = "name_nat"
)

const DefaultSortOrder = SortUploadDesc

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortUploadDesc, SortUploadAsc, SortNameAsc, SortNameNat:
		return true
	default:
		return false
	}
}

// OrderClause maps a sort order to its SQL ORDER BY expression. Natural name
// ordering cannot be expressed in SQL and is applied after the query; it is
// fetched by name here.
func OrderClause(order string) string {
	switch order {
	case SortUploadAsc:
		return "upload_time ASC"
	case SortNameAsc, SortNameNat:
		return "original_name ASC"
	default:
		return "upload_time DESC"
	}
}
