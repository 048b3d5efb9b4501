package fuse

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testSignature mirrors the general roll layout without loading rule files.
type testSignature struct{}

var (
	testHeader = regexp.MustCompile(`^[A-Z][a-z]+ \d+$`)
	testStart  = regexp.MustCompile(`^[A-Z][A-Z/.'\- ]*,`)
)

func (testSignature) IsPageHeader(line string) bool { return testHeader.MatchString(line) }

func (s testSignature) StartsRecord(line string) bool {
	return !s.IsPageHeader(line) && testStart.MatchString(line)
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single line",
			text: "SMITH, JOHN, African American, M881, res. Bangor",
			want: []string{"SMITH, JOHN, African American, M881, res. Bangor"},
		},
		{
			name: "continuation joined with space",
			text: "SMITH, JOHN,\nAfrican American, M881, res. Bangor",
			want: []string{"SMITH, JOHN, African American, M881, res. Bangor"},
		},
		{
			name: "page header dropped between records",
			text: "SMITH, JOHN, M881\nMaine 23\nJONES, ABEL, W1234",
			want: []string{"SMITH, JOHN, M881", "JONES, ABEL, W1234"},
		},
		{
			name: "page header inside a wrapped record",
			text: "SMITH, JOHN,\nMaine 23\nres. Bangor",
			want: []string{"SMITH, JOHN, res. Bangor"},
		},
		{
			name: "leading continuation starts implicit record",
			text: "served three years\nSMITH, JOHN, M881",
			want: []string{"served three years", "SMITH, JOHN, M881"},
		},
		{
			name: "blank lines and surrounding whitespace ignored",
			text: "\n\n   SMITH, JOHN   \n\n\t\nJONES, ABEL\n\n",
			want: []string{"SMITH, JOHN", "JONES, ABEL"},
		},
		{
			name: "crlf line endings",
			text: "SMITH, JOHN,\r\nres. Bangor\r\nJONES, ABEL",
			want: []string{"SMITH, JOHN, res. Bangor", "JONES, ABEL"},
		},
		{
			name: "only headers",
			text: "Maine 23\nMaine 24",
			want: nil,
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Texts(Fuse(tt.text, testSignature{}))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fuse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFuseLineNumbers(t *testing.T) {
	text := "SMITH, JOHN,\nMaine 23\n\nres. Bangor\nJONES, ABEL"
	records := Fuse(text, testSignature{})

	if len(records) != 2 {
		t.Fatalf("Fuse() returned %d records, want 2", len(records))
	}
	if diff := cmp.Diff([]int{1, 4}, records[0].Lines); diff != "" {
		t.Errorf("records[0].Lines mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5}, records[1].Lines); diff != "" {
		t.Errorf("records[1].Lines mismatch (-want +got):\n%s", diff)
	}
}

func TestFuseNeverEmitsBlankRecords(t *testing.T) {
	text := strings.Repeat("   \n", 10) + "SMITH, JOHN\n" + strings.Repeat("\t\n", 5)
	for _, r := range Fuse(text, testSignature{}) {
		if strings.TrimSpace(r.Text) == "" {
			t.Errorf("Fuse() emitted blank record %+v", r)
		}
	}
}
