package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSetupJSONCarriesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&Options{JSON: true, Service: "blobstored", Version: "v1.2.3", UID: true, Output: &buf})
	log.Info("hello", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record %q: %v", buf.String(), err)
	}
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["service"] != "blobstored" || rec["version"] != "v1.2.3" {
		t.Fatalf("missing service attrs: %v", rec)
	}
	uid, _ := rec["uid"].(string)
	if _, err := uuid.Parse(uid); err != nil {
		t.Fatalf("uid %q is not a uuid: %v", uid, err)
	}
}

func TestSetupDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&Options{Output: &buf}).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record logged at info level: %q", buf.String())
	}

	Setup(&Options{Debug: true, Output: &buf}).Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("debug record missing: %q", buf.String())
	}
}

func TestSetupNilOptions(t *testing.T) {
	if Setup(nil) == nil {
		t.Fatal("expected a logger")
	}
}
