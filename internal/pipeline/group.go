package pipeline

import "github.com/xavierca1/ligue-crm/internal/entity"

// Columns maps every status of the vocabulary to its leads, in input order.
type Columns map[entity.Status][]*entity.Lead

type ColumnSummary struct {
	Status entity.Status `json:"status"`
	Label  string        `json:"label"`
	Count  int           `json:"count"`
	Value  float64       `json:"value"`
}

// GroupByStatus partitions leads by normalized status. Every status key is
// present even when its column is empty. Leads whose status was invalid are
// copied with the corrected status; valid leads are passed through as is.
// Duplicated IDs are not collapsed.
func GroupByStatus(leads []*entity.Lead) Columns {
	cols := make(Columns, len(entity.Statuses))
	for _, s := range entity.Statuses {
		cols[s] = []*entity.Lead{}
	}

	for _, lead := range leads {
		if lead == nil {
			continue
		}
		status := entity.NormalizeStatus(string(lead.Status))
		if status != lead.Status {
			lead = lead.Clone()
			lead.Status = status
		}
		cols[status] = append(cols[status], lead)
	}

	return cols
}

// Flatten concatenates the columns in vocabulary order.
func (c Columns) Flatten() []*entity.Lead {
	var out []*entity.Lead
	for _, s := range entity.Statuses {
		out = append(out, c[s]...)
	}
	return out
}

func (c Columns) Summaries() []ColumnSummary {
	out := make([]ColumnSummary, 0, len(entity.Statuses))
	for _, s := range entity.Statuses {
		sum := ColumnSummary{Status: s, Label: s.Label(), Count: len(c[s])}
		for _, l := range c[s] {
			if l.Value != nil {
				sum.Value += *l.Value
			}
		}
		out = append(out, sum)
	}
	return out
}
