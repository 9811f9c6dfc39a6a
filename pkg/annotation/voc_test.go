package annotation

import (
	"errors"
	"testing"
)

const twoPersonsOneCar = `<?xml version="1.0"?>
<annotation>
	<folder>images</folder>
	<filename>street_001.jpg</filename>
	<size>
		<width>1920</width>
		<height>1080</height>
		<depth>3</depth>
	</size>
	<object>
		<name>person</name>
		<bndbox><xmin>10</xmin><ymin>20</ymin><xmax>110</xmax><ymax>220</ymax></bndbox>
	</object>
	<object>
		<name>car</name>
		<bndbox><xmin>300</xmin><ymin>400</ymin><xmax>700</xmax><ymax>650</ymax></bndbox>
	</object>
	<object>
		<name>person</name>
		<bndbox><xmin> 5 </xmin><ymin>6</ymin><xmax>7</xmax><ymax>8</ymax></bndbox>
	</object>
</annotation>`

func TestParseVOC(t *testing.T) {
	parsed, err := ParseVOC([]byte(twoPersonsOneCar))
	if err != nil {
		t.Fatalf("ParseVOC() error = %v", err)
	}

	if parsed.Filename != "street_001.jpg" {
		t.Errorf("Filename = %q", parsed.Filename)
	}
	if parsed.ImageWidth != 1920 || parsed.ImageHeight != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", parsed.ImageWidth, parsed.ImageHeight)
	}
	if parsed.ObjectCount != 3 {
		t.Errorf("ObjectCount = %d, want 3", parsed.ObjectCount)
	}
	if len(parsed.Objects) != 3 {
		t.Errorf("len(Objects) = %d, want 3", len(parsed.Objects))
	}
	if parsed.ClassCounts["person"] != 2 || parsed.ClassCounts["car"] != 1 || len(parsed.ClassCounts) != 2 {
		t.Errorf("ClassCounts = %v, want person:2 car:1", parsed.ClassCounts)
	}
	if parsed.ClassCounts.Total() != parsed.ObjectCount {
		t.Errorf("class total %d != object count %d", parsed.ClassCounts.Total(), parsed.ObjectCount)
	}

	first := parsed.Objects[0]
	if first.Class != "person" || first.XMin != 10 || first.YMin != 20 || first.XMax != 110 || first.YMax != 220 {
		t.Errorf("Objects[0] = %+v", first)
	}
	if parsed.Objects[2].XMin != 5 {
		t.Errorf("whitespace around coordinates not trimmed: %+v", parsed.Objects[2])
	}
}

func TestParseVOCSkipsIncompleteObjects(t *testing.T) {
	doc := `<annotation>
		<object><name>person</name></object>
		<object><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object>
		<object><name>dog</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax></bndbox></object>
		<object><name>cat</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object>
	</annotation>`

	parsed, err := ParseVOC([]byte(doc))
	if err != nil {
		t.Fatalf("ParseVOC() error = %v", err)
	}
	if parsed.ObjectCount != 1 || parsed.ClassCounts["cat"] != 1 {
		t.Errorf("got %d objects %v, want only cat", parsed.ObjectCount, parsed.ClassCounts)
	}
	if parsed.ImageWidth != 0 || parsed.ImageHeight != 0 {
		t.Errorf("missing size should give 0x0, got %dx%d", parsed.ImageWidth, parsed.ImageHeight)
	}
}

func TestParseVOCMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"unclosed", "<annotation><object><name>person</name>"},
		{"not xml", "person 0.5 0.5 0.1 0.1"},
		{"bad coordinate", `<annotation><object><name>a</name><bndbox><xmin>1.5</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object></annotation>`},
		{"bad width", `<annotation><size><width>wide</width></size></annotation>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseVOC([]byte(tt.data))
			if err == nil {
				t.Fatalf("expected error, got %+v", parsed)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v is not ErrMalformed", err)
			}
			if parsed != nil {
				t.Errorf("partial result returned: %+v", parsed)
			}
		})
	}
}

func TestParsedAnnotation(t *testing.T) {
	parsed, err := VOC.Parse([]byte(twoPersonsOneCar))
	if err != nil {
		t.Fatal(err)
	}

	a, err := parsed.Annotation("sample-1")
	if err != nil {
		t.Fatalf("Annotation() error = %v", err)
	}
	if a.SampleID != "sample-1" || a.ObjectCount != 3 {
		t.Errorf("annotation = %+v", a)
	}
	if got := a.ClassCounts.Data(); got["person"] != 2 || got["car"] != 1 {
		t.Errorf("ClassCounts = %v", got)
	}
	if len(a.Classes) != 2 || a.Classes[0].ClassName != "car" || a.Classes[1].Count != 2 {
		t.Errorf("Classes = %+v", a.Classes)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		key        string
		stem       string
		name       string
		image      bool
		annotation bool
	}{
		{"train/images/IMG_001.jpg", "IMG_001", "IMG_001.jpg", true, false},
		{"train/labels/IMG_001.XML", "IMG_001", "IMG_001.XML", false, true},
		{"a.b.c.png", "a.b.c", "a.b.c.png", true, false},
		{"noext", "noext", "noext", false, false},
		{"dir/.hidden", ".hidden", ".hidden", false, false},
		{"photo.JPEG", "photo", "photo.JPEG", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := FileStem(tt.key); got != tt.stem {
				t.Errorf("FileStem() = %q, want %q", got, tt.stem)
			}
			if got := FileName(tt.key); got != tt.name {
				t.Errorf("FileName() = %q, want %q", got, tt.name)
			}
			if got := IsImageKey(tt.key); got != tt.image {
				t.Errorf("IsImageKey() = %v, want %v", got, tt.image)
			}
			if got := IsAnnotationKey(tt.key); got != tt.annotation {
				t.Errorf("IsAnnotationKey() = %v, want %v", got, tt.annotation)
			}
		})
	}
}
