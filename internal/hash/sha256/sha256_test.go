package sha256

import "testing"

func TestHexKnownDigests(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"hello world": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		"":            "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	for in, want := range cases {
		if got := Hex([]byte(in)); got != want {
			t.Fatalf("Hex(%q) = %s, want %s", in, got, want)
		}
	}
}
