// Package annotation parses object-detection annotation files.
package annotation

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mwantia/manifest/pkg/db/models"
)

// ErrMalformed is returned for any payload that cannot be parsed. No partial
// result is ever returned alongside it.
var ErrMalformed = errors.New("malformed annotation")

// Parsed is the format-independent result of parsing one annotation file.
type Parsed struct {
	Format      models.AnnotationFormat
	Filename    string
	ImageWidth  int
	ImageHeight int
	Objects     []models.BoundingBox
	ClassCounts models.ClassCounts
	ObjectCount int
}

// Parser turns raw annotation bytes into a Parsed value.
type Parser interface {
	Parse(data []byte) (*Parsed, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(data []byte) (*Parsed, error)

func (f ParserFunc) Parse(data []byte) (*Parsed, error) {
	return f(data)
}

// VOC parses Pascal VOC XML.
var VOC Parser = ParserFunc(ParseVOC)

type vocDocument struct {
	Filename *string     `xml:"filename"`
	Size     *vocSize    `xml:"size"`
	Objects  []vocObject `xml:"object"`
}

type vocSize struct {
	Width  *string `xml:"width"`
	Height *string `xml:"height"`
}

type vocObject struct {
	Name   *string    `xml:"name"`
	BndBox *vocBndBox `xml:"bndbox"`
}

type vocBndBox struct {
	XMin *string `xml:"xmin"`
	YMin *string `xml:"ymin"`
	XMax *string `xml:"xmax"`
	YMax *string `xml:"ymax"`
}

// ParseVOC parses a Pascal VOC XML document. Objects without a name or
// without a complete bounding box are skipped; a missing size block yields
// zero dimensions.
func ParseVOC(data []byte) (*Parsed, error) {
	var doc vocDocument

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	parsed := &Parsed{
		Format:      models.FormatVOC,
		ClassCounts: make(models.ClassCounts),
		Objects:     make([]models.BoundingBox, 0, len(doc.Objects)),
	}

	if doc.Filename != nil {
		parsed.Filename = strings.TrimSpace(*doc.Filename)
	}

	if doc.Size != nil {
		var err error
		if parsed.ImageWidth, err = optionalInt(doc.Size.Width, "width"); err != nil {
			return nil, err
		}
		if parsed.ImageHeight, err = optionalInt(doc.Size.Height, "height"); err != nil {
			return nil, err
		}
	}

	for _, obj := range doc.Objects {
		if obj.Name == nil || obj.BndBox == nil {
			continue
		}
		box := obj.BndBox
		if box.XMin == nil || box.YMin == nil || box.XMax == nil || box.YMax == nil {
			continue
		}

		class := strings.TrimSpace(*obj.Name)
		if class == "" {
			return nil, fmt.Errorf("%w: object with empty name", ErrMalformed)
		}

		coords := make([]int, 4)
		for i, raw := range []*string{box.XMin, box.YMin, box.XMax, box.YMax} {
			v, err := strconv.Atoi(strings.TrimSpace(*raw))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid coordinate %q for '%s'", ErrMalformed, *raw, class)
			}
			coords[i] = v
		}

		parsed.Objects = append(parsed.Objects, models.BoundingBox{
			Class: class,
			XMin:  coords[0],
			YMin:  coords[1],
			XMax:  coords[2],
			YMax:  coords[3],
		})
		parsed.ClassCounts[class]++
	}

	parsed.ObjectCount = len(parsed.Objects)
	return parsed, nil
}

func optionalInt(raw *string, name string) (int, error) {
	if raw == nil {
		return 0, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(*raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformed, name, *raw)
	}
	return v, nil
}

// Annotation converts the parse result into a model bound to sampleID.
func (p *Parsed) Annotation(sampleID string) (*models.Annotation, error) {
	return models.NewAnnotation(sampleID, p.Format, p.ImageWidth, p.ImageHeight, p.Objects)
}
