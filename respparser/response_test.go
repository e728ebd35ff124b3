package respparser

import "testing"

func TestParseExists(t *testing.T) {
	r, err := Parse("*", "23 EXISTS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindExists || r.Num != 23 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseOKWithCode(t *testing.T) {
	r, err := Parse("*", "OK [UIDVALIDITY 3857529045] UIDs valid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindStatus {
		t.Fatalf("got kind %v", r.Kind)
	}
	if r.Status.Code != "UIDVALIDITY" || r.Status.CodeArg != "3857529045" {
		t.Fatalf("got %+v", r.Status)
	}
	if r.Status.Text != "UIDs valid" {
		t.Fatalf("got text %q", r.Status.Text)
	}
}

func TestParseCapability(t *testing.T) {
	r, err := Parse("*", "CAPABILITY IMAP4rev1 STARTTLS AUTH=PLAIN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Capability) != 3 {
		t.Fatalf("got %v", r.Capability)
	}
}

func TestParseFlags(t *testing.T) {
	r, err := Parse("*", `FLAGS (\Seen \Answered \Deleted)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Flags) != 3 {
		t.Fatalf("got %v", r.Flags)
	}
}

func TestParseSearch(t *testing.T) {
	r, err := Parse("*", "SEARCH 2 84 882")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Search) != 3 || r.Search[2] != 882 {
		t.Fatalf("got %v", r.Search)
	}
}

func TestParseESearch(t *testing.T) {
	r, err := Parse("*", "ESEARCH (TAG \"a\") UID COUNT 5 ALL 1:5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.ESearch.UID || r.ESearch.Count != 5 || r.ESearch.All != "1:5" {
		t.Fatalf("got %+v", r.ESearch)
	}
}

func TestParseFetchBasic(t *testing.T) {
	r, err := Parse("*", `12 FETCH (UID 100 FLAGS (\Seen))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindFetch || r.Fetch.UID != 100 || len(r.Fetch.Flags) != 1 {
		t.Fatalf("got %+v", r.Fetch)
	}
}

func TestParseVanished(t *testing.T) {
	r, err := Parse("*", "VANISHED (EARLIER) 300:310,405")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Vanished.Earlier || r.Vanished.UIDs != "300:310,405" {
		t.Fatalf("got %+v", r.Vanished)
	}
}

func TestParseMalformedReturnsParseError(t *testing.T) {
	_, err := Parse("*", "BOGUS RESPONSE HERE @#$")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*ParseErrorResponse); !ok {
		t.Fatalf("got %T", err)
	}
}
