package table

import (
	"sort"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"rocket-console/internal/schema"
)

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortState is the single active sort. An empty Key means unsorted.
type SortState struct {
	Key string
	Dir Direction
}

// Param renders the state as a sort query value: "key" or "-key".
func (s SortState) Param() string {
	if s.Key == "" {
		return ""
	}
	if s.Dir == Descending {
		return "-" + s.Key
	}
	return s.Key
}

// next applies a header click.
func (s SortState) next(key string) SortState {
	if s.Key == key && s.Dir == Ascending {
		return SortState{Key: key, Dir: Descending}
	}
	return SortState{Key: key, Dir: Ascending}
}

// sorter orders rows of the loaded page. Strings compare with the
// collator; numbers, times and booleans by value; nil sorts last.
type sorter struct {
	col *collate.Collator
}

func newSorter(tag language.Tag) *sorter {
	return &sorter{col: collate.New(tag, collate.IgnoreCase)}
}

func (s *sorter) sort(rows []schema.Row, state SortState) []schema.Row {
	out := append([]schema.Row(nil), rows...)
	if state.Key == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i][state.Key], out[j][state.Key]
		if a == nil || b == nil {
			// nil last in both directions
			return a != nil && b == nil
		}
		c := s.compare(a, b)
		if state.Dir == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func (s *sorter) compare(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return s.col.CompareString(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	if isNumber(a) && isNumber(b) {
		af, bf := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return s.col.CompareString(cast.ToString(a), cast.ToString(b))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
