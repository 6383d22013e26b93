package catalog

import (
	"cmp"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Matches "<FAMILY>_<N>[.<N>...]", e.g. "GLIBC_2.4" or "GLIBCXX_3.4.21".
// The family is matched lazily so that families containing underscores
// ("LIB_FOO_1.0") keep them.
var tagRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*?)_(\d+(?:\.\d+)*)$`)

// A parsed API version tag.
type Tag struct {
	Family  string // Symbolic family, e.g. "GLIBC".
	Numbers []int  // Numeric components, e.g. [2, 27].
	Raw     string // Tag as written in the catalog.
}

// Parses a version tag. Returns false for tags that carry no numeric version,
// such as "GLIBC_PRIVATE".
func ParseTag(s string) (Tag, bool) {
	m := tagRegex.FindStringSubmatch(s)
	if m == nil {
		return Tag{}, false
	}

	parts := strings.Split(m[2], ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Tag{}, false
		}
		nums[i] = n
	}

	return Tag{Family: m[1], Numbers: nums, Raw: s}, true
}

// Compares two tags of the same family numerically. Missing trailing
// components count as zero, so "GLIBC_2.4" equals "GLIBC_2.4.0". The second
// result is false when the families differ and the tags are incomparable.
func Compare(a, b Tag) (int, bool) {
	if a.Family != b.Family {
		return 0, false
	}

	for i := range max(len(a.Numbers), len(b.Numbers)) {
		if c := cmp.Compare(component(a.Numbers, i), component(b.Numbers, i)); c != 0 {
			return c, true
		}
	}
	return 0, true
}

func component(nums []int, i int) int {
	if i < len(nums) {
		return nums[i]
	}
	return 0
}

// Highest tag per family among a set of raw tags. Unparseable tags are
// ignored.
type Maxima map[string]Tag

// Returns the highest tag of each family found in tags. When two tags compare
// equal the lexically smaller raw form is kept, so the result does not depend
// on input order.
func MaxByFamily(tags []string) Maxima {
	out := make(Maxima)
	for _, s := range tags {
		t, ok := ParseTag(s)
		if !ok {
			continue
		}
		cur, seen := out[t.Family]
		if !seen {
			out[t.Family] = t
			continue
		}
		c, _ := Compare(t, cur)
		if c > 0 || (c == 0 && t.Raw < cur.Raw) {
			out[t.Family] = t
		}
	}
	return out
}

// Returns the families in sorted order.
func (m Maxima) Families() []string {
	return slices.Sorted(maps.Keys(m))
}

// Returns the representative tag of the set: the maximum of the first family
// in sorted order. Empty when the set has no parseable tags.
func (m Maxima) Best() string {
	fams := m.Families()
	if len(fams) == 0 {
		return ""
	}
	return m[fams[0]].Raw
}
