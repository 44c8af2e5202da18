package form

import "rocket-console/internal/schema"

// LayoutRow is one rendered row of inputs.
type LayoutRow struct {
	Group  string
	Fields []schema.Field
}

// Layout groups fields sharing a LayoutGroup into one row, placed where the
// group first appears. Ungrouped fields get a row each.
func Layout(fields []schema.Field) []LayoutRow {
	var rows []LayoutRow
	index := map[string]int{}
	for _, f := range fields {
		if f.LayoutGroup == "" {
			rows = append(rows, LayoutRow{Fields: []schema.Field{f}})
			continue
		}
		if i, ok := index[f.LayoutGroup]; ok {
			rows[i].Fields = append(rows[i].Fields, f)
			continue
		}
		index[f.LayoutGroup] = len(rows)
		rows = append(rows, LayoutRow{Group: f.LayoutGroup, Fields: []schema.Field{f}})
	}
	return rows
}
