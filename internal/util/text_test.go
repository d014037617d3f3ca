package util

import (
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "contains null byte",
			input: "hel\x00lo",
			want:  "hello",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeProperties(t *testing.T) {
	in := common.Properties{
		"name": common.String("Ac\x00me"),
		"tags": common.List(common.String(string([]byte{'x', 0xff})), common.Number(1)),
		"meta": common.Map(map[string]common.Value{"note": common.String("ok\x00")}),
	}
	got := SanitizeProperties(in)

	want := common.Properties{
		"name": common.String("Acme"),
		"tags": common.List(common.String("x"), common.Number(1)),
		"meta": common.Map(map[string]common.Value{"note": common.String("ok")}),
	}
	for k, v := range want {
		if !got[k].Equal(v) {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if s, _ := in["name"].AsString(); s != "Ac\x00me" {
		t.Fatal("input was modified")
	}
}
