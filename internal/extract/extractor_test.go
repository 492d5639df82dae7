package extract

import (
	"testing"

	"github.com/rs/zerolog"

	"contact_harvest/internal/shared/types"
)

func defaultRules() types.ExtractRules {
	return types.ExtractRules{
		NameSeparator: ",",
		Address: types.Section{
			Start: "Current Address",
			Intro: "This is the most recently reported address",
		},
		Phones: types.Section{
			Start: "Phone Numbers",
			Intro: "Includes the current and past phone numbers",
			End:   []string{"Email Addresses", "Background Report"},
		},
		PhoneLineTypes: []string{"Wireless"},
		Emails: types.Section{
			Start: "Email Addresses",
			Intro: "Includes all known email addresses",
			End:   []string{"Current Address Property Details"},
		},
	}
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	x, err := New(defaultRules(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return x
}

const detailPage = `John Smith, Age 45

Current Address

This is the most recently reported address for John.

123 Main St
Austin, TX 78701 $350,000

Phone Numbers

Includes the current and past phone numbers for John.

(512) 555-1212 - Wireless

(512) 555-9999 - Landline

(737) 555-0001
Wireless

Email Addresses

Includes all known email addresses for John.

john@example.com

j.smith@mail.example.org

Current Address Property Details

noreply@example.com
`

func TestExtractDetailPage(t *testing.T) {
	got := newExtractor(t).Extract(detailPage)

	if got.Name != "John Smith" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Address != "123 Main St, Austin, TX 78701" {
		t.Errorf("address = %q", got.Address)
	}
	wantPhones := []string{"(512) 555-1212", "(737) 555-0001"}
	if len(got.Phones) != len(wantPhones) {
		t.Fatalf("phones = %v", got.Phones)
	}
	for i := range wantPhones {
		if got.Phones[i] != wantPhones[i] {
			t.Errorf("phone %d = %q, want %q", i, got.Phones[i], wantPhones[i])
		}
	}
	if len(got.Emails) != 2 || got.Emails[0] != "john@example.com" || got.Emails[1] != "j.smith@mail.example.org" {
		t.Errorf("emails = %v", got.Emails)
	}
	if len(got.Misses) != 0 {
		t.Errorf("unexpected misses %v", got.Misses)
	}
}

func TestExtractCapsPhonesAndEmails(t *testing.T) {
	text := "Jane Doe, 30\n\nPhone Numbers\n\n" +
		"(111) 111-1111 - Wireless\n(222) 222-2222 - Wireless\n(333) 333-3333 - Wireless\n" +
		"(444) 444-4444 - Wireless\n(555) 555-5555 - Wireless\n\n" +
		"Email Addresses\n\na@x.io\nb@x.io\nc@x.io\nd@x.io\n"
	got := newExtractor(t).Extract(text)
	if len(got.Phones) != 4 || got.Phones[3] != "(444) 444-4444" {
		t.Errorf("phones = %v", got.Phones)
	}
	if len(got.Emails) != 3 || got.Emails[2] != "c@x.io" {
		t.Errorf("emails = %v", got.Emails)
	}
}

func TestExtractRulesAreIndependent(t *testing.T) {
	// no separator on the leading line and no address section
	text := "Jane Doe\n\nPhone Numbers\n\n(111) 111-1111 - Wireless\n"
	got := newExtractor(t).Extract(text)
	if got.Name != "" || got.Address != "" {
		t.Errorf("expected empty name/address, got %q / %q", got.Name, got.Address)
	}
	if len(got.Phones) != 1 {
		t.Errorf("phones = %v", got.Phones)
	}
	for _, f := range []string{FieldName, FieldAddress, FieldEmails} {
		if !got.Missed(f) {
			t.Errorf("expected miss for %s, misses=%v", f, got.Misses)
		}
	}
	if got.Missed(FieldPhones) {
		t.Error("phones should not be a miss")
	}
}

func TestExtractPhonesOnlyInsideSection(t *testing.T) {
	text := "A B, 1\n\n(999) 999-9999 - Wireless\n\nBackground Report\n\nPhone Numbers\n\nnone listed\n\nEmail Addresses\n\n(888) 888-8888 - Wireless\n"
	got := newExtractor(t).Extract(text)
	if len(got.Phones) != 0 {
		t.Errorf("expected no phones outside section, got %v", got.Phones)
	}
}

func TestApplyLeftPacks(t *testing.T) {
	var r types.Result
	Extraction{Phones: []string{"", "(512) 555-1212", " "}, Emails: nil}.Apply(&r)
	want := [types.PhoneSlots]string{"(512) 555-1212", "", "", ""}
	if r.Phones != want {
		t.Errorf("phones = %v", r.Phones)
	}
	if r.Emails != [types.EmailSlots]string{} {
		t.Errorf("emails = %v", r.Emails)
	}
}

func TestNewRequiresLineType(t *testing.T) {
	rules := defaultRules()
	rules.PhoneLineTypes = nil
	if _, err := New(rules, zerolog.Nop()); err == nil {
		t.Fatal("expected error without phone line types")
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		in      string
		count   int
		numeric bool
	}{
		{"3 people found", 3, true},
		{"  12 records found for John Smith ", 12, true},
		{"1,204 results", 1204, true},
		{"0 records found", 0, true},
		{"We could not find any records", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		s := ParseSummary(tt.in)
		if s.Count != tt.count || s.Numeric != tt.numeric {
			t.Errorf("ParseSummary(%q) = %+v", tt.in, s)
		}
	}
}

func TestSummaryFromText(t *testing.T) {
	text := "TruePeopleSearch\n\n123 Main St\n\n3 records found for John Smith\n"
	line, ok := SummaryFromText(text)
	if !ok || line != "3 records found for John Smith" {
		t.Errorf("SummaryFromText = %q, %v", line, ok)
	}
	if _, ok := SummaryFromText("nothing here\n42 Elm St"); ok {
		t.Error("address line must not be taken as a summary")
	}
}
