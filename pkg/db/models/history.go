package models

import (
	"time"

	"gorm.io/datatypes"
)

type HistoryAction string

const (
	HistoryCreated            HistoryAction = "created"
	HistoryUpdated            HistoryAction = "updated"
	HistoryDeleted            HistoryAction = "deleted"
	HistoryRestored           HistoryAction = "restored"
	HistoryTagged             HistoryAction = "tagged"
	HistoryAddedToDataset     HistoryAction = "added_to_dataset"
	HistoryRemovedFromDataset HistoryAction = "removed_from_dataset"
	HistoryAnnotationLinked   HistoryAction = "annotation_linked"
	HistoryAnnotationConflict HistoryAction = "annotation_conflict"
	HistoryAnnotationRemoved  HistoryAction = "annotation_removed"
	HistoryAnnotationError    HistoryAction = "annotation_error"
)

// SampleHistory is an append-only audit record of a sample transition
type SampleHistory struct {
	ID       string            `gorm:"primaryKey;type:text"`
	SampleID string            `gorm:"type:text;not null;index"`
	Action   HistoryAction     `gorm:"type:text;not null;index"`
	Details  datatypes.JSONMap `gorm:"type:json"`

	CreatedAt time.Time `gorm:"index"`
}
