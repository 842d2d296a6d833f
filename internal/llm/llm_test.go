package llm

import "testing"

func TestFindFirstJSON_PlainObject(t *testing.T) {
	got := FindFirstJSON(`{"same_topic": true}`)
	if got != `{"same_topic": true}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestFindFirstJSON_WrappedInProse(t *testing.T) {
	input := "Sure, here is the result:\n```json\n{\"name\": \"Budget\", \"keywords\": [\"q3\"]}\n```\nDone."
	got := FindFirstJSON(input)
	if got != `{"name": "Budget", "keywords": ["q3"]}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestFindFirstJSON_BracesInStrings(t *testing.T) {
	input := `{"summary": "we discussed {scope} and \"quotes\""}`
	if got := FindFirstJSON(input); got != input {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestFindFirstJSON_NoObject(t *testing.T) {
	if got := FindFirstJSON("no json here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		SameTopic bool   `json:"same_topic"`
		Name      string `json:"name"`
	}
	if err := DecodeJSON(`the verdict: {"same_topic": false, "name": "Hiring"}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SameTopic || out.Name != "Hiring" {
		t.Errorf("unexpected decode: %+v", out)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	var out map[string]any
	if err := DecodeJSON("nothing structured", &out); err == nil {
		t.Fatal("expected error")
	}
}
