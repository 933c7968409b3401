package app

import (
	"reflect"
	"testing"
	"time"
)

func TestEnvHelpers_FallBackOnBadValues(t *testing.T) {
	t.Setenv("FORUM_T_BOOL", "maybe")
	t.Setenv("FORUM_T_INT", "-3")
	t.Setenv("FORUM_T_INT32", "0")
	t.Setenv("FORUM_T_DUR", "soon")
	t.Setenv("FORUM_T_STR", "   ")

	if got := EnvBool("FORUM_T_BOOL", true); !got {
		t.Fatalf("EnvBool fallback: got %v", got)
	}
	if got := EnvInt("FORUM_T_INT", 7); got != 7 {
		t.Fatalf("EnvInt fallback: got %d", got)
	}
	if got := EnvInt32("FORUM_T_INT32", 4); got != 0 {
		t.Fatalf("EnvInt32 should accept zero: got %d", got)
	}
	if got := EnvDuration("FORUM_T_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration fallback: got %s", got)
	}
	if got := EnvString("FORUM_T_STR", "def"); got != "def" {
		t.Fatalf("EnvString blank: got %q", got)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("FORUM_T_CSV", " https://a.example , ,https://b.example:*,")

	got := EnvCSV("FORUM_T_CSV")
	want := []string{"https://a.example", "https://b.example:*"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EnvCSV=%v want %v", got, want)
	}
	if got := EnvCSV("FORUM_T_UNSET"); got != nil {
		t.Fatalf("unset: %v", got)
	}
}
