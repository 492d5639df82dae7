package pagetext

import "testing"

func TestFromHTML(t *testing.T) {
	markup := `<html><head><title>John Smith, Age 45 | Search</title>
<style>.x{color:red}</style><script>var a = "Access Denied";</script></head>
<body>
  <div class="hdr"><h1>John   Smith</h1></div>
  <div><span>Current Address</span></div>
  <div>123 Main St<br>Austin, TX 78701</div>
  <p>(512) 555-1212 - <span>Wireless</span></p>
</body></html>`

	got, err := FromHTML(markup)
	if err != nil {
		t.Fatalf("FromHTML failed: %v", err)
	}
	want := "John Smith, Age 45 | Search\n\n" +
		"John Smith\n\n" +
		"Current Address\n\n" +
		"123 Main St\nAustin, TX 78701\n\n" +
		"(512) 555-1212 - Wireless"
	if got != want {
		t.Errorf("FromHTML mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestFromHTMLEmpty(t *testing.T) {
	got, err := FromHTML("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}
