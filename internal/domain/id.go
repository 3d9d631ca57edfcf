package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

const ComplaintIDPrefix = "COMP-"

var complaintIDRe = regexp.MustCompile(`^COMP-(\d+)$`)

func FormatComplaintID(n int) string {
	return fmt.Sprintf("%s%06d", ComplaintIDPrefix, n)
}

// ParseComplaintNumber returns the numeric suffix of a COMP-###### id.
// Ids that do not follow the pattern report ok=false.
func ParseComplaintNumber(id string) (int, bool) {
	m := complaintIDRe.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
