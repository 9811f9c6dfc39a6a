package models

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
)

type AnnotationFormat string

const (
	FormatVOC  AnnotationFormat = "voc"
	FormatYOLO AnnotationFormat = "yolo"
	FormatCOCO AnnotationFormat = "coco"
)

// ClassCounts maps a class name to the number of objects of that class.
type ClassCounts map[string]int

func (c ClassCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Names returns the class names in lexical order.
func (c ClassCounts) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BoundingBox is one labelled object in pixel coordinates.
type BoundingBox struct {
	Class string `json:"class"`
	XMin  int    `json:"xmin"`
	YMin  int    `json:"ymin"`
	XMax  int    `json:"xmax"`
	YMax  int    `json:"ymax"`
}

// Annotation holds the parsed ground truth of exactly one sample
type Annotation struct {
	ID          string                            `gorm:"primaryKey;type:text"`
	SampleID    string                            `gorm:"type:text;not null;uniqueIndex"`
	Format      AnnotationFormat                  `gorm:"type:text;not null;default:voc"`
	ImageWidth  int                               `gorm:"default:0"`
	ImageHeight int                               `gorm:"default:0"`
	ObjectCount int                               `gorm:"not null;default:0;index"`
	ClassCounts datatypes.JSONType[ClassCounts]   `gorm:"type:json"`
	Objects     datatypes.JSONType[[]BoundingBox] `gorm:"type:json"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	Classes []AnnotationClass `gorm:"foreignKey:AnnotationID;constraint:OnDelete:CASCADE"`
}

// AnnotationClass is the queryable projection of Annotation.ClassCounts
type AnnotationClass struct {
	AnnotationID string `gorm:"primaryKey;type:text"`
	ClassName    string `gorm:"primaryKey;type:text;index"`
	SampleID     string `gorm:"type:text;not null;index"`
	Count        int    `gorm:"not null"`
}

// NewAnnotation builds an annotation for sampleID, tallying the objects per
// class. Every object needs a class name.
func NewAnnotation(sampleID string, format AnnotationFormat, width, height int, objects []BoundingBox) (*Annotation, error) {
	counts := make(ClassCounts)
	for _, obj := range objects {
		if obj.Class == "" {
			return nil, fmt.Errorf("object without class name")
		}
		counts[obj.Class]++
	}

	a := &Annotation{
		SampleID:    sampleID,
		Format:      format,
		ImageWidth:  width,
		ImageHeight: height,
		ObjectCount: len(objects),
		ClassCounts: datatypes.NewJSONType(counts),
		Objects:     datatypes.NewJSONType(objects),
	}

	for _, name := range counts.Names() {
		a.Classes = append(a.Classes, AnnotationClass{
			ClassName: name,
			SampleID:  sampleID,
			Count:     counts[name],
		})
	}

	return a, nil
}
