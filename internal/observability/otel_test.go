package observability

import (
	"context"
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	cases := []struct {
		raw  string
		want map[string]string
	}{
		{"", nil},
		{"api-key=abc", map[string]string{"api-key": "abc"}},
		{" a = 1 , b=2,broken, c= ", map[string]string{"a": "1", "b": "2"}},
	}
	for _, tc := range cases {
		if got := ParseHeaders(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseHeaders(%q): got=%v want=%v", tc.raw, got, tc.want)
		}
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	if ctx == nil {
		t.Fatalf("nil context")
	}
}
