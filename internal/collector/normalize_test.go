package collector

import "testing"

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"@Foo", "foo"},
		{"https://t.me/Foo", "foo"},
		{"t.me/Foo/123?x=1", "foo"},
		{"http://t.me/Foo#anchor", "foo"},
		{"T.ME/Foo", "foo"},
		{"  @Alice  ", "alice"},
		{"alice", "alice"},
		{"https://t.me/Some_Channel?start=abc", "some_channel"},
		{"", ""},
		{"@", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
