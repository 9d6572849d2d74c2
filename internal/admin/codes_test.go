package admin

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		action string
		code   int
		want   Kind
	}{
		{ActionStart, 0, KindOK},
		{ActionStart, -4, KindForbidden},
		{ActionEcho, -5, KindActionNotFound},
		{ActionStart, 2, KindNoExistingDB},
		{ActionStart, 3, KindSchemaOutOfSync},
		{ActionStart, 4, KindMissingConstants},
		{ActionStart, 5, KindInsecureAdminCredential},
		{ActionStart, 6, KindInvalidState},
		{ActionStart, 13, KindNoMobileLicense},
		{ActionStart, 99, KindUnknown},
		{ActionUpdateConfiguration, 1, KindConfigRejected},
		{ActionUpdateAppContainerConfiguration, 1, KindConfigRejected},
		{ActionCreateLogSubscriber, 3, KindSubscriberExists},
		{ActionCheckHealth, 2, KindInvalidState},
		// codes are per action: 2 on check_health is not a missing database
		{ActionCheckHealth, 3, KindUnknown},
		{ActionEcho, 2, KindUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.action, c.code); got != c.want {
			t.Errorf("Classify(%s, %d) = %s, want %s", c.action, c.code, got, c.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindSchemaOutOfSync.String() != "schema_out_of_sync" {
		t.Fatalf("unexpected name %q", KindSchemaOutOfSync.String())
	}
	if Kind(999).String() != "unknown" {
		t.Fatal("out of range kinds must print unknown")
	}
}

func TestFeedbackAccessors(t *testing.T) {
	fb := Feedback{"count": float64(3), "users": []any{"a", 2}, "status": "running", "nested": map[string]any{"x": "y"}}
	if n, ok := fb.Int("count"); !ok || n != 3 {
		t.Fatalf("Int: %d %v", n, ok)
	}
	if got := fb.Strings("users"); len(got) != 2 || got[1] != "2" {
		t.Fatalf("Strings: %v", got)
	}
	if fb.String("missing") != "" {
		t.Fatal("missing key must be empty")
	}
	if fb.Map("nested").String("x") != "y" {
		t.Fatal("Map")
	}
}
