package venue

// CompatibleDepth rounds a requested order-book depth up to the smallest
// accepted value that still covers it. Requests above the venue maximum are
// capped to the maximum; capped reports when that happened so the caller
// can log it. Accepted must be sorted ascending; an empty table passes the
// request through untouched.
func CompatibleDepth(accepted []int, requested int) (depth int, capped bool) {
	if len(accepted) == 0 {
		return requested, false
	}

	for _, d := range accepted {
		if d >= requested {
			return d, false
		}
	}

	return accepted[len(accepted)-1], true
}
