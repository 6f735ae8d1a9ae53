package inspect

import (
	"regexp"
	"strconv"
	"strings"
)

// containerSignatures are the standard library types whose elements can be reached with name[i]
var containerSignatures = []string{
	"std::vector",
	"std::array",
	"std::list",
	"std::deque",
	"std::map",
	"std::set",
	"std::unordered_map",
	"std::unordered_set",
}

var sizePattern = regexp.MustCompile(`size\s*=\s*(\d+)`)

// IsContainer reports whether typ names a known container type
func IsContainer(typ string) bool {
	for _, sig := range containerSignatures {
		if strings.Contains(typ, sig) {
			return true
		}
	}
	return false
}

// ParseSize extracts the element count from an lldb summary such as
// "size=3 {...}". Summaries without a count yield 0.
func ParseSize(summary string) int {
	m := sizePattern.FindStringSubmatch(summary)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
