package casestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCasesFile(t *testing.T, cases []*FraudCase) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fraud_cases.json")
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func sampleCase() *FraudCase {
	return &FraudCase{
		UserName:            "Jane Doe",
		CardEnding:          "4242",
		SecurityIdentifier:  "mother's maiden name",
		SecurityAnswer:      "Smith",
		TransactionAmount:   "$499.99",
		TransactionName:     "TechGadgets Online",
		TransactionCategory: "Electronics",
		TransactionLocation: "Austin, TX",
		TransactionTime:     "2:47 AM",
		TransactionSource:   "Online purchase",
	}
}

func TestLoad_MissingFileIsNotFatal(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d cases", s.Len())
	}
	if s.FindByName("Jane Doe") != nil {
		t.Fatalf("expected lookup miss on empty store")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraud_cases.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewStore(path)
	if err := s.Load(); err == nil {
		t.Fatalf("expected parse error for malformed file")
	}
}

func TestFindByName_CaseAndWhitespaceInsensitive(t *testing.T) {
	path := writeCasesFile(t, []*FraudCase{sampleCase()})
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	names := []string{"Jane Doe", "jane doe", "  JANE DOE  ", "\tjAnE dOe\n"}
	var found []*FraudCase
	for _, n := range names {
		c := s.FindByName(n)
		if c == nil {
			t.Fatalf("expected hit for %q", n)
		}
		found = append(found, c)
	}
	for i := 1; i < len(found); i++ {
		if found[i] != found[0] {
			t.Fatalf("expected all lookups to return the same record")
		}
	}
	if s.FindByName("John Doe") != nil {
		t.Fatalf("expected miss for unknown name")
	}
	if s.FindByName("") != nil {
		t.Fatalf("expected miss for empty name")
	}
}

func TestResolve_SafeAndFraudPersist(t *testing.T) {
	for _, tc := range []struct {
		name       string
		made       bool
		wantStatus Status
		wantPhrase string
	}{
		{"confirmed_safe", true, StatusSafe, "legitimate"},
		{"confirmed_fraud", false, StatusFraud, "dispute filed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCasesFile(t, []*FraudCase{sampleCase()})
			s := NewStore(path)
			if err := s.Load(); err != nil {
				t.Fatalf("load: %v", err)
			}
			c := s.FindByName("Jane Doe")
			if err := s.Resolve(c, tc.made); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if c.Status != tc.wantStatus {
				t.Fatalf("status: got %q want %q", c.Status, tc.wantStatus)
			}
			if c.Outcome == "" || !strings.Contains(c.Outcome, tc.wantPhrase) {
				t.Fatalf("outcome mismatch: %q", c.Outcome)
			}

			// reload from disk and confirm the mutation was persisted
			s2 := NewStore(path)
			if err := s2.Load(); err != nil {
				t.Fatalf("reload: %v", err)
			}
			c2 := s2.FindByName("Jane Doe")
			if c2 == nil || c2.Status != tc.wantStatus {
				t.Fatalf("persisted status mismatch")
			}
			if c2.Outcome != c.Outcome {
				t.Fatalf("persisted outcome mismatch: %q vs %q", c2.Outcome, c.Outcome)
			}
		})
	}
}

func TestSave_ReplacesFileAtomically(t *testing.T) {
	path := writeCasesFile(t, []*FraudCase{sampleCase()})
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".fraud_cases-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
	// file remains valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var cases []*FraudCase
	if err := json.Unmarshal(data, &cases); err != nil {
		t.Fatalf("saved file not valid JSON: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(cases))
	}
}
