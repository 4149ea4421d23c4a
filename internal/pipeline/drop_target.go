package pipeline

import (
	"strings"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

// DropTarget is either a ColumnTarget or a CardTarget.
type DropTarget interface {
	isDropTarget()
}

// ColumnTarget is a drop on a status column.
type ColumnTarget struct {
	Status entity.Status
}

// CardTarget is a drop on another lead's card; the dragged lead joins that
// card's column.
type CardTarget struct {
	LeadID string
}

func (ColumnTarget) isDropTarget() {}
func (CardTarget) isDropTarget()   {}

// ParseDropTarget classifies a raw drop target identifier. It returns nil
// when there is no target.
func ParseDropTarget(id string) DropTarget {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if entity.IsValidStatus(id) {
		return ColumnTarget{Status: entity.Status(id)}
	}
	return CardTarget{LeadID: id}
}

// resolveTarget returns the status a drop on target means, looking card
// targets up in the cache.
func resolveTarget(target DropTarget, cache *Cache) (entity.Status, bool) {
	switch t := target.(type) {
	case ColumnTarget:
		return t.Status, true
	case CardTarget:
		lead, ok := cache.Get(t.LeadID)
		if !ok {
			return "", false
		}
		return lead.Status, true
	}
	return "", false
}
