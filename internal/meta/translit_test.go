package meta

import "testing"

func TestIsLatin(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"John Smith", true},
		{"Björk", true},
		{"José González", true},
		{"AC/DC & Co.", true},
		{"", true},
		{"宇多田ヒカル", false},
		{"Кино", false},
		{"Sigur Rós, 坂本龍一", false},
	}
	for _, tt := range tests {
		if got := IsLatin(tt.in); got != tt.want {
			t.Errorf("IsLatin(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHasCJK(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ひかる", true},
		{"カタカナ", true},
		{"漢字", true},
		{"Кино", false},
		{"Björk", false},
	}
	for _, tt := range tests {
		if got := HasCJK(tt.in); got != tt.want {
			t.Errorf("HasCJK(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTransliterate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Björk", "Bjork"},
		{"Кино", "Kino"},
		{"ひかる", "hikaru"},
	}
	for _, tt := range tests {
		if got := Transliterate(tt.in); got != tt.want {
			t.Errorf("Transliterate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
