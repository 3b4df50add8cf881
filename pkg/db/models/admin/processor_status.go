package admin

import (
	"time"
)

const ProcessorStatusTableName = "processor_status"

// ProcessorStatus is the checkpoint of one processor: the highest end
// version of a range it committed.
type ProcessorStatus struct {
	Processor          string    `json:"processor" db:"processor"`
	LastSuccessVersion uint64    `json:"last_success_version" db:"last_success_version"`
	LastUpdated        time.Time `json:"last_updated" db:"last_updated"`
}

// VersionRange is an inclusive span of transaction versions.
type VersionRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len is the number of versions in the range.
func (r VersionRange) Len() uint64 {
	return r.End - r.Start + 1
}
