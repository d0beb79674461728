package feedback

import "testing"

func TestParseIssueType(t *testing.T) {
	for _, s := range []string{"", "wrong_info", "CLOSED", " not_eligible ", "no_response", "other"} {
		if _, err := ParseIssueType(s); err != nil {
			t.Errorf("ParseIssueType(%q): %v", s, err)
		}
	}
	if _, err := ParseIssueType("rude_staff"); err == nil {
		t.Error("expected error for unknown issue")
	}
}

func TestSuccess(t *testing.T) {
	five := 5
	one := 1
	h, r, ok := Feedback{Helpful: true, Rating: &five}.Success()
	if h != 1 || r != 1 || !ok {
		t.Errorf("got %v %v %v", h, r, ok)
	}
	h, r, ok = Feedback{Rating: &one}.Success()
	if h != 0 || r != 0 || !ok {
		t.Errorf("got %v %v %v", h, r, ok)
	}
	if _, _, ok := (Feedback{Helpful: true}).Success(); ok {
		t.Error("no rating should report hasRating=false")
	}
}

func TestNeedsReview(t *testing.T) {
	if (Feedback{Helpful: false}).NeedsReview() {
		t.Error("negative feedback without issue should not flag")
	}
	if !(Feedback{Helpful: false, IssueType: IssueClosed}).NeedsReview() {
		t.Error("negative feedback with issue should flag")
	}
	if (Feedback{Helpful: true, IssueType: IssueOther}).NeedsReview() {
		t.Error("helpful feedback should not flag")
	}
}
