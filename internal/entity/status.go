package entity

import "go.uber.org/zap"

// Status is the lifecycle stage of a lead. The zero value is not valid;
// use NormalizeStatus at every boundary that reads raw strings.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusContacted Status = "CONTACTED"
	StatusProposal  Status = "PROPOSAL"
	StatusClosed    Status = "CLOSED"

	DefaultStatus = StatusOpen
)

// Statuses lists the vocabulary in column display order.
var Statuses = []Status{StatusOpen, StatusContacted, StatusProposal, StatusClosed}

var statusLabels = map[Status]string{
	StatusOpen:      "Open",
	StatusContacted: "Contacted",
	StatusProposal:  "Proposal",
	StatusClosed:    "Closed",
}

func IsValidStatus(value string) bool {
	_, ok := statusLabels[Status(value)]
	return ok
}

// ParseStatus is the silent form of NormalizeStatus: it reports whether value
// was already valid instead of logging.
func ParseStatus(value string) (Status, bool) {
	if IsValidStatus(value) {
		return Status(value), true
	}
	return DefaultStatus, false
}

// NormalizeStatus never fails. Unknown values are logged and mapped to OPEN.
func NormalizeStatus(value string) Status {
	s, ok := ParseStatus(value)
	if !ok {
		zap.L().Warn("invalid lead status, falling back to default",
			zap.String("status", value),
			zap.String("default", string(DefaultStatus)))
	}
	return s
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return statusLabels[DefaultStatus]
}

// Index returns the display position of s, or -1 when s is not in the vocabulary.
func (s Status) Index() int {
	for i, v := range Statuses {
		if v == s {
			return i
		}
	}
	return -1
}
