package models

import "testing"

func TestNewAnnotation(t *testing.T) {
	a, err := NewAnnotation("s1", FormatVOC, 640, 480, []BoundingBox{
		{Class: "car"}, {Class: "person"}, {Class: "car"},
	})
	if err != nil {
		t.Fatalf("NewAnnotation() error = %v", err)
	}

	counts := a.ClassCounts.Data()
	if a.ObjectCount != 3 || counts["car"] != 2 || counts["person"] != 1 {
		t.Errorf("objects = %d, counts = %v", a.ObjectCount, counts)
	}
	if len(a.Classes) != 2 || a.Classes[0].ClassName != "car" || a.Classes[0].SampleID != "s1" {
		t.Errorf("classes = %+v", a.Classes)
	}

	empty, err := NewAnnotation("s2", FormatVOC, 0, 0, nil)
	if err != nil || empty.ObjectCount != 0 || len(empty.Classes) != 0 {
		t.Errorf("empty annotation = %+v, %v", empty, err)
	}

	if _, err := NewAnnotation("s3", FormatVOC, 0, 0, []BoundingBox{{Class: ""}}); err == nil {
		t.Error("NewAnnotation() accepted an object without class")
	}
}
