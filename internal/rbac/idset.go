package rbac

import (
	"sort"

	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
)

// IDSet holds normalized ids. Membership is normalized equality, not the
// permissive substring match: it is used where one id stands for a whole
// set of rows.
type IDSet map[string]struct{}

func NewIDSet(values ...string) IDSet {
	set := make(IDSet, len(values))
	for _, value := range values {
		set.Add(value)
	}
	return set
}

// Add inserts value. Blank values are ignored.
func (s IDSet) Add(value any) {
	if key := idmatch.Normalize(value); key != "" {
		s[key] = struct{}{}
	}
}

func (s IDSet) Contains(value any) bool {
	key := idmatch.Normalize(value)
	if key == "" {
		return false
	}
	_, ok := s[key]
	return ok
}

// Values returns the members in sorted order.
func (s IDSet) Values() []string {
	values := make([]string, 0, len(s))
	for key := range s {
		values = append(values, key)
	}
	sort.Strings(values)
	return values
}

func (s IDSet) Len() int { return len(s) }
