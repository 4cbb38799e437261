package files

import (
	"strings"
	"testing"
	"time"
)

func TestKeyGeneratorFormat(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 12, 0, 0, 123456789, time.UTC)
	gen := &KeyGenerator{Now: func() time.Time { return at }}

	key := gen.New("Cat.PNG")
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		t.Fatalf("expected hash_timestamp form, got %q", key)
	}
	if len(parts[0]) != 32 {
		t.Fatalf("expected 128-bit hex digest, got %q", parts[0])
	}
	if !strings.HasSuffix(key, ".png") {
		t.Fatalf("expected lower-cased .png suffix, got %q", key)
	}
	if !strings.Contains(key, "1772366400123456789") {
		t.Fatalf("expected nanosecond timestamp in %q", key)
	}
	if !ValidKey(key) {
		t.Fatalf("generated key %q is not valid", key)
	}
}

func TestKeyGeneratorDiffersByTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	gen := &KeyGenerator{Now: func() time.Time {
		at = at.Add(time.Nanosecond)
		return at
	}}

	a := gen.New("cat.png")
	b := gen.New("cat.png")
	if a == b {
		t.Fatalf("expected distinct keys for same name at different instants, got %q twice", a)
	}
	if a[:32] != b[:32] {
		t.Fatalf("expected same name hash, got %q and %q", a[:32], b[:32])
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "cat.png", want: ".png"},
		{name: "upper", in: "CAT.JPEG", want: ".jpeg"},
		{name: "double", in: "archive.tar.gz", want: ".gz"},
		{name: "none", in: "README", want: ""},
		{name: "trailing dot", in: "cat.", want: ""},
		{name: "windows path", in: `C:\pics\cat.gif`, want: ".gif"},
		{name: "dotted dir", in: "dir.v2/cat", want: ""},
		{name: "unsafe", in: "cat.p?g", want: ""},
		{name: "too long", in: "x." + strings.Repeat("a", 17), want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Extension(tt.in); got != tt.want {
				t.Fatalf("Extension(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", ".env", "../x", "a/b", "A_1.png", "a b"} {
		if ValidKey(key) {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if !ValidKey("0cc175b9c0f1b6a831c399e269772661_1772366400123456789.png") {
		t.Fatalf("expected generated-form key to be accepted")
	}
}

func TestKeyTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 12, 0, 0, 42, time.UTC)
	gen := &KeyGenerator{Now: func() time.Time { return at }}

	tests := []struct {
		name string
		key  string
		want time.Time
		ok   bool
	}{
		{name: "generated with extension", key: gen.New("cat.png"), want: at, ok: true},
		{name: "generated without extension", key: gen.New("notes"), want: at, ok: true},
		{name: "no separator", key: "abcdef.png", ok: false},
		{name: "non numeric stamp", key: "abc_xyz.png", ok: false},
		{name: "zero stamp", key: "abc_0.png", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := KeyTime(tt.key)
			if ok != tt.ok {
				t.Fatalf("KeyTime(%q) ok = %t, want %t", tt.key, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("KeyTime(%q) = %s, want %s", tt.key, got, tt.want)
			}
		})
	}
}
