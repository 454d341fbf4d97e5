package diag

import "testing"

func TestSinkHasErrors(t *testing.T) {
	s := NewSink()
	if s.HasErrors() {
		t.Fatal("fresh sink should have no errors")
	}
	s.Warnf(Span{}, "W-TEST", "just a warning")
	if s.HasErrors() {
		t.Fatal("a warning alone should not count as an error")
	}
	s.Errorf(Span{}, "E-TEST", "something broke: %d", 42)
	if !s.HasErrors() {
		t.Fatal("expected HasErrors() after Errorf")
	}
}

func TestSinkAllPreservesOrder(t *testing.T) {
	s := NewSink()
	s.Warnf(Span{Begin: 1}, "W-A", "first")
	s.Errorf(Span{Begin: 2}, "E-B", "second")
	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(all))
	}
	if all[0].ID != "W-A" || all[1].ID != "E-B" {
		t.Errorf("diagnostics out of order: %+v", all)
	}
}

func TestICEReturnsErrorAndRecords(t *testing.T) {
	s := NewSink()
	err := s.ICE(Span{FileID: 3}, "invariant %s broken", "X")
	if err == nil {
		t.Fatal("ICE should return a non-nil error")
	}
	all := s.All()
	if len(all) != 1 || all[0].ID != InternalError || all[0].Severity != Error {
		t.Errorf("expected one Error-severity ICE diagnostic, got %+v", all)
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{Hint, "hint"},
		{Warning, "warning"},
		{Error, "error"},
	}
	for _, tc := range tests {
		if got := tc.sev.String(); got != tc.want {
			t.Errorf("%v.String() = %q, want %q", tc.sev, got, tc.want)
		}
	}
}
