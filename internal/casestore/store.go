package casestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status records the resolution of a fraud case. A case starts with the
// zero value and is set exactly once, when the customer confirms or
// denies the flagged transaction.
type Status string

const (
	StatusUnset Status = ""
	StatusSafe  Status = "confirmed_safe"
	StatusFraud Status = "confirmed_fraud"
)

// FraudCase is one customer's fraud-alert record as stored in the
// backing JSON file. Field names match the file format exactly.
type FraudCase struct {
	UserName            string `json:"userName"`
	CardEnding          string `json:"cardEnding"`
	SecurityIdentifier  string `json:"securityIdentifier"`
	SecurityAnswer      string `json:"securityAnswer"`
	TransactionAmount   string `json:"transactionAmount"`
	TransactionName     string `json:"transactionName"`
	TransactionCategory string `json:"transactionCategory"`
	TransactionLocation string `json:"transactionLocation"`
	TransactionTime     string `json:"transactionTime"`
	TransactionSource   string `json:"transactionSource"`
	Status              Status `json:"status"`
	Outcome             string `json:"outcome"`
}

// Store holds the fraud-case collection loaded from a JSON file and
// writes it back on resolution. All access goes through the store's
// mutex so concurrent calls cannot interleave a save with a mutation.
type Store struct {
	path string

	mu    sync.RWMutex
	cases []*FraudCase
}

// NewStore creates a store backed by the given file path. Call Load
// before serving calls.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the backing file. A missing file is not an error: the
// store degrades to an empty collection and every lookup misses.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("fraud cases file not found: %s", s.path)
			return nil
		}
		return fmt.Errorf("read fraud cases: %w", err)
	}
	var cases []*FraudCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return fmt.Errorf("parse fraud cases: %w", err)
	}
	s.mu.Lock()
	s.cases = cases
	s.mu.Unlock()
	log.Printf("Loaded %d fraud cases from database", len(cases))
	return nil
}

// Len reports the number of loaded cases.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// FindByName returns the first case whose userName matches the given
// name after trimming whitespace and ignoring case. No fuzzy matching.
func (s *Store) FindByName(name string) *FraudCase {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cases {
		if strings.ToLower(strings.TrimSpace(c.UserName)) == want {
			return c
		}
	}
	return nil
}

// Resolve sets the case's status and outcome for the customer's answer
// and persists the full collection. The outcome string carries the
// resolution timestamp for the audit trail.
func (s *Store) Resolve(c *FraudCase, madeTransaction bool) error {
	now := time.Now().Format(time.RFC3339)
	s.mu.Lock()
	if madeTransaction {
		c.Status = StatusSafe
		c.Outcome = fmt.Sprintf("Customer confirmed transaction as legitimate on %s", now)
	} else {
		c.Status = StatusFraud
		c.Outcome = fmt.Sprintf("Customer denied transaction - marked as fraud on %s. Card blocked and dispute filed.", now)
	}
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Save serializes the collection back to the backing file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the collection to a temp file in the same directory
// and renames it into place, so a crash mid-write never leaves a
// truncated database behind. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cases, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fraud cases: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".fraud_cases-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace fraud cases file: %w", err)
	}
	log.Println("Fraud cases database updated")
	return nil
}
