package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	for _, want := range []string{"fxwatcher", Version, Commit, BuildDate} {
		if !strings.Contains(got, want) {
			t.Fatalf("版本信息缺少 %q: %s", want, got)
		}
	}
}
