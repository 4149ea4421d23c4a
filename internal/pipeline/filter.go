package pipeline

import (
	"strings"
	"time"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

// All disables the status or owner selector.
const All = "all"

const dateLayout = "2006-01-02"

// FilterState is the transient board filter. The zero value and DefaultFilter
// both match every lead.
type FilterState struct {
	Query  string `json:"q"`
	Status string `json:"status"`
	Owner  string `json:"owner"`
	Date   string `json:"date"`
}

func DefaultFilter() FilterState {
	return FilterState{Status: All, Owner: All}
}

func (f FilterState) IsEmpty() bool {
	return strings.TrimSpace(f.Query) == "" && isAll(f.Status) && isAll(f.Owner) && !f.hasDate()
}

// Matches reports whether lead passes every active criterion of f.
// Unparseable dates and unknown status selectors are treated as no filter.
func Matches(lead *entity.Lead, f FilterState) bool {
	if lead == nil {
		return false
	}

	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !containsFold(lead.Name, q) && !containsFold(lead.Company, q) && !containsFold(lead.Email, q) {
			return false
		}
	}

	if !isAll(f.Status) {
		if want, ok := entity.ParseStatus(f.Status); ok {
			got, _ := entity.ParseStatus(string(lead.Status))
			if got != want {
				return false
			}
		}
	}

	if !isAll(f.Owner) && lead.AssignedTo != f.Owner {
		return false
	}

	if day, ok := parseDay(f.Date); ok && !sameDay(lead.CreatedAt.In(time.Local), day) {
		return false
	}

	return true
}

// Apply returns the leads that match f, preserving input order.
func Apply(leads []*entity.Lead, f FilterState) []*entity.Lead {
	out := make([]*entity.Lead, 0, len(leads))
	for _, l := range leads {
		if Matches(l, f) {
			out = append(out, l)
		}
	}
	return out
}

func (f FilterState) hasDate() bool {
	_, ok := parseDay(f.Date)
	return ok
}

func isAll(selector string) bool {
	s := strings.TrimSpace(selector)
	return s == "" || strings.EqualFold(s, All)
}

func containsFold(field, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(field), lowerQuery)
}

func parseDay(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(dateLayout, raw, time.Local); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(time.Local), true
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
