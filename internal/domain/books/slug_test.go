package books

import "testing"

func TestSafeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "Harry Potter", want: "Harry_Potter"},
		{in: "  The   Cat's  Hat! ", want: "The_Cats_Hat"},
		{in: "Chapter\t1:\nThe Beginning", want: "Chapter_1_The_Beginning"},
		{in: "Émile & the Détectives", want: "mile_the_Dtectives"},
		{in: "already_underscored title", want: "alreadyunderscored_title"},
		{in: "!!!", want: ""},
	}
	for _, tc := range cases {
		if got := SafeTitle(tc.in); got != tc.want {
			t.Errorf("SafeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeysAndDisplayTitle(t *testing.T) {
	if got := SnapshotKey("Harry_Potter"); got != "books/Harry_Potter/chapters_final.json" {
		t.Fatalf("SnapshotKey: %q", got)
	}
	if got := BookPrefix("Harry_Potter"); got != "books/Harry_Potter/" {
		t.Fatalf("BookPrefix: %q", got)
	}
	if got := DisplayTitleFromSlug("Harry_Potter_and_Friends"); got != "Harry Potter and Friends" {
		t.Fatalf("DisplayTitleFromSlug: %q", got)
	}
}
