package job

import "testing"

func TestIdentity_String(t *testing.T) {
	id := Identity{Host: "web1", PID: 1234, Queues: []string{"high", "default"}}
	want := "web1:1234:high,default"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("web1:1234:high,default")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if id.Host != "web1" || id.PID != 1234 {
		t.Errorf("unexpected host/pid: %+v", id)
	}
	if len(id.Queues) != 2 || id.Queues[0] != "high" || id.Queues[1] != "default" {
		t.Errorf("unexpected queues: %v", id.Queues)
	}
}

func TestParseIdentity_QueueNameContainingColon(t *testing.T) {
	// Only the first two colons are split on, so a queue list containing a
	// colon (e.g. a namespaced queue name) does not break parsing.
	id, err := ParseIdentity("web1:1234:ns:high")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if len(id.Queues) != 1 || id.Queues[0] != "ns:high" {
		t.Errorf("expected a single queue \"ns:high\", got %v", id.Queues)
	}
}

func TestParseIdentity_Wildcard(t *testing.T) {
	id, err := ParseIdentity("web1:1:*")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if len(id.Queues) != 1 || id.Queues[0] != "*" {
		t.Errorf("expected wildcard queue, got %v", id.Queues)
	}
}

func TestParseIdentity_EmptyQueueList(t *testing.T) {
	id, err := ParseIdentity("web1:1:")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if len(id.Queues) != 0 {
		t.Errorf("expected no queues, got %v", id.Queues)
	}
}

func TestParseIdentity_Malformed(t *testing.T) {
	for _, s := range []string{"", "web1", "web1:abc:default", "web1:1234"} {
		if _, err := ParseIdentity(s); err == nil {
			t.Errorf("expected error parsing %q, got nil", s)
		}
	}
}

func TestCanonicalHost(t *testing.T) {
	cases := map[string]string{
		"Web1.Example.com.": "web1.example.com",
		"WEB1":              "web1",
		"web1.example.com":  "web1.example.com",
	}
	for in, want := range cases {
		if got := CanonicalHost(in); got != want {
			t.Errorf("CanonicalHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseIdentity_RoundTripsWithString(t *testing.T) {
	id := Identity{Host: "web2", PID: 42, Queues: []string{"low"}}
	parsed, err := ParseIdentity(id.String())
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if parsed.Host != id.Host || parsed.PID != id.PID || len(parsed.Queues) != 1 || parsed.Queues[0] != "low" {
		t.Errorf("round-trip mismatch: got %+v, want %+v", parsed, id)
	}
}
