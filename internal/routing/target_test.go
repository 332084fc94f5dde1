package routing

import "testing"

func TestExtractTargetID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "alice(12345) requested a human operator", want: "12345", ok: true},
		{in: "bob[678] waiting", want: "678", ok: true},
		{in: "张三（4242）请求转人工", want: "4242", ok: true},
		{in: "first [11] then (22)", want: "11", ok: true},
		{in: "(12a) not numeric", ok: false},
		{in: "no id here 12345", ok: false},
		{in: "【999】 other bracket style", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := ExtractTargetID(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ExtractTargetID(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResolveTargetPrefersExplicit(t *testing.T) {
	if got, _ := resolveTarget("555", "alice(12345)"); got != "555" {
		t.Fatalf("resolveTarget() = %q, want explicit 555", got)
	}
	if got, _ := resolveTarget("(777)", ""); got != "777" {
		t.Fatalf("resolveTarget() = %q, want bracket-stripped 777", got)
	}
	if got, ok := resolveTarget("", "alice(12345)"); !ok || got != "12345" {
		t.Fatalf("resolveTarget() = %q, %v; want quoted 12345", got, ok)
	}
	if _, ok := resolveTarget(" ", "nothing"); ok {
		t.Fatalf("resolveTarget() should fail without any id")
	}
}
