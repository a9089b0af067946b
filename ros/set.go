package ros

func contains(list []string, key string) bool {
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}

// setDifference returns the members of lhs that are not members of rhs,
// keeping lhs order and dropping duplicates.
func setDifference(lhs []string, rhs []string) []string {
	var result []string
	for _, item := range lhs {
		if !contains(rhs, item) && !contains(result, item) {
			result = append(result, item)
		}
	}
	return result
}
