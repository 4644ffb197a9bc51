package cypher

import (
	"testing"
)

func TestParseEnvelopePicksPayloadLine(t *testing.T) {
	body := []byte("0:[\"$@1\",[\"abc\",null]]\n1:42\n")
	if got := intOrZero(ParseEnvelope(body)); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestParseEnvelopeMissingPrefixDefaults(t *testing.T) {
	cases := map[string]string{
		"no payload line": "0:{\"a\":1}\n2:true\n",
		"empty body":      "",
		"broken json":     "1:{not json\n",
		"html error page": "<html><body>502</body></html>",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			raw := ParseEnvelope([]byte(body))
			if raw != nil {
				t.Fatalf("expected nil payload, got %s", raw)
			}
			if intOrZero(raw) != 0 {
				t.Fatal("expected zero default")
			}
		})
	}
}

func TestIntOrZeroAcceptsNumericStrings(t *testing.T) {
	if got := intOrZero([]byte(`"17"`)); got != 17 {
		t.Fatalf("expected 17, got %d", got)
	}
	if got := intOrZero([]byte(`12.0`)); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := intOrZero([]byte(`null`)); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
