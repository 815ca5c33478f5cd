package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"yes": true, "TRUE": true, "t": true, "Y": true, "1": true,
		"no": false, "False": false, "f": false, "N": false, "0": false,
	}
	for in, want := range cases {
		got, err := ParseBool(in)
		if err != nil {
			t.Fatalf("ParseBool(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseBool_Rejects(t *testing.T) {
	for _, in := range []string{"", "maybe", "2", "on"} {
		if _, err := ParseBool(in); err == nil {
			t.Errorf("ParseBool(%q) should fail", in)
		}
	}
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"[]", nil},
		{"['123', '456']", []string{"123", "456"}},
		{`["abc"]`, []string{"abc"}},
		{"[123, 'x']", []string{"123", "x"}},
		{"('1', '2')", []string{"1", "2"}},
		{"100004", []string{"100004"}},
	}
	for _, tt := range tests {
		got, err := ParseIDList(tt.in)
		if err != nil {
			t.Fatalf("ParseIDList(%q): %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ParseIDList(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParseIDList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParseIDList_Invalid(t *testing.T) {
	for _, in := range []string{"[unclosed", "[[1]]", "{'a': 'b'}"} {
		if _, err := ParseIDList(in); err == nil {
			t.Errorf("ParseIDList(%q) should fail", in)
		}
	}
}

func TestIDList_FlagValue(t *testing.T) {
	var l IDList
	if err := l.Set("['7', 8]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !l.Contains("7") || !l.Contains("8") || l.Contains("9") {
		t.Fatalf("unexpected contents: %v", l)
	}
	if got := l.String(); got != "['7', '8']" {
		t.Fatalf("String: got %q", got)
	}
	if l.Type() != "list" {
		t.Fatalf("Type: got %q", l.Type())
	}
}

func TestIDList_UnmarshalYAMLLiteralString(t *testing.T) {
	var out struct {
		IDs IDList `yaml:"ids"`
	}
	if err := yaml.Unmarshal([]byte(`ids: "['1', '2']"`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.IDs) != 2 || out.IDs[0] != "1" || out.IDs[1] != "2" {
		t.Fatalf("got %v", out.IDs)
	}
}
