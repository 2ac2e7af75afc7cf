package s3log

import "testing"

func sampleFields(n int) []string {
	base := []string{
		"79a59df900b949e55d96a1e698fbacedfd6e09d98eacf8f8d5218e7cd47ef2be",
		"dandiarchive",
		"[06/Feb/2019:00:00:38 +0000]",
		"192.0.2.3",
		"-",
		"3E57427F3EXAMPLE",
		"REST.GET.OBJECT",
		"blobs/1d/8a/1d8a9a.nwb",
		"GET /blobs/1d/8a/1d8a9a.nwb HTTP/1.1",
		"200",
		"-",
		"2662992",
		"2662992",
		"70",
		"10",
		"-",
		"S3Console/0.4",
		"-",
		"host-id-example==",
		"SigV4",
		"ECDHE-RSA-AES128-GCM-SHA256",
		"AuthHeader",
		"s3.us-east-1.amazonaws.com",
		"TLSv1.2",
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i < len(base) {
			out = append(out, base[i])
		} else {
			out = append(out, "extra")
		}
	}
	return out
}

func joinQuoted(fields []string) string {
	quoted := map[int]bool{2: true, 8: true, 15: true, 16: true}
	var line string
	for i, f := range fields {
		if i > 0 {
			line += " "
		}
		if i == 2 {
			line += f // already bracketed in sampleFields
			continue
		}
		if quoted[i] {
			line += `"` + f + `"`
		} else {
			line += f
		}
	}
	return line
}

func TestTokenize24FieldsPadded(t *testing.T) {
	fields := sampleFields(24)
	line := joinQuoted(fields)

	tokens, err := Tokenize(line)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 25 {
		t.Fatalf("got %d tokens, want 25: %v", len(tokens), tokens)
	}
	if tokens[24] != "-" {
		t.Errorf("expected padded access point ARN of \"-\", got %q", tokens[24])
	}
}

func TestTokenize25FieldsPassThrough(t *testing.T) {
	fields := sampleFields(25)
	line := joinQuoted(fields)

	tokens, err := Tokenize(line)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 25 {
		t.Fatalf("got %d tokens, want 25: %v", len(tokens), tokens)
	}
	if tokens[7] != "blobs/1d/8a/1d8a9a.nwb" {
		t.Errorf("object key mismatch: %q", tokens[7])
	}
}

func TestTokenize26FieldsDropsLast(t *testing.T) {
	fields := sampleFields(26)
	line := joinQuoted(fields)

	tokens, err := Tokenize(line)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 25 {
		t.Fatalf("got %d tokens, want 25: %v", len(tokens), tokens)
	}
}

func TestTokenizeMalformedLineErrors(t *testing.T) {
	_, err := Tokenize("way too short a line")
	if err == nil {
		t.Fatal("expected an error for a malformed line")
	}
	var malformed *ErrMalformedLine
	if _, ok := err.(*ErrMalformedLine); !ok {
		t.Fatalf("expected *ErrMalformedLine, got %T (%v)", err, malformed)
	}
}

func TestTokenizeEmbeddedQuoteInUserAgent(t *testing.T) {
	fields := sampleFields(25)
	fields[16] = `Mozilla/5.0 (compatible; "weird-bot" 1.0)`
	line := joinQuoted(fields)

	tokens, err := Tokenize(line)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 25 {
		t.Fatalf("got %d tokens, want 25: %v", len(tokens), tokens)
	}
	if tokens[16] != " - " {
		t.Errorf("expected repaired user agent field of \" - \", got %q", tokens[16])
	}
	// Fields surrounding the repaired block must be untouched.
	if tokens[15] != "-" {
		t.Errorf("referrer field corrupted by repair: %q", tokens[15])
	}
	if tokens[17] != "-" {
		t.Errorf("version id field corrupted by repair: %q", tokens[17])
	}
}

func TestFindAllIndexNonOverlapping(t *testing.T) {
	positions := findAllIndex(`a "b" c "d" e`, ` "`, 1000)
	if len(positions) != 2 {
		t.Fatalf("got %d positions, want 2: %v", len(positions), positions)
	}
}
