package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_SURVEY_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestTypedEnv(t *testing.T) {
	t.Setenv("_SURVEY_INT", "12")
	t.Setenv("_SURVEY_BAD_INT", "twelve")
	t.Setenv("_SURVEY_DUR", "90s")
	t.Setenv("_SURVEY_LIST", " a, ,b ,")
	t.Setenv("_SURVEY_BOOL", "off")

	if got := EnvInt("_SURVEY_INT", 1); got != 12 {
		t.Fatalf("EnvInt = %d", got)
	}
	if got := EnvInt("_SURVEY_BAD_INT", 1); got != 1 {
		t.Fatalf("EnvInt malformed = %d, want fallback", got)
	}
	if got := EnvDuration("_SURVEY_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("EnvDuration = %v", got)
	}
	if got := EnvList("_SURVEY_LIST"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("EnvList = %q", got)
	}
	if EnvBool("_SURVEY_BOOL", true) {
		t.Fatalf("EnvBool off should be false")
	}
	if !EnvBool("_SURVEY_UNSET_BOOL", true) {
		t.Fatalf("EnvBool unset should use fallback")
	}
}
