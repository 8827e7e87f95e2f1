// Package fraud implements the scripted fraud-alert call: a per-call
// state machine over the case store, exposed to the dialogue LLM as
// four callable tools. Every operation returns a natural-language
// string for the agent to relay; failures are soft by contract.
package fraud

import (
	"fmt"
	"log"
	"strings"

	"github.com/securebank/fraudcall/internal/casestore"
	"github.com/securebank/fraudcall/internal/metrics"
)

// State tracks how far the scripted call has progressed.
type State int

const (
	StateNoCase State = iota
	StateCaseLoaded
	StateVerified
	StateResolved
	// StateVerificationFailed is terminal: the attempt cap was hit and
	// the call requires human escalation. No further verification is
	// accepted, even with a correct answer.
	StateVerificationFailed
)

// MaxVerificationAttempts caps the security-question retries per call.
const MaxVerificationAttempts = 2

// CallSession holds the mutable state of one call. A fresh session is
// built per connected call and discarded when the call ends; nothing
// survives a call except what Resolve writes through the store.
type CallSession struct {
	store  *casestore.Store
	callID string

	state                State
	currentCase          *casestore.FraudCase
	verificationPassed   bool
	verificationAttempts int
	transactionConfirmed *bool
	callCompleted        bool
}

// NewCallSession creates the per-call state for callID.
func NewCallSession(store *casestore.Store, callID string) *CallSession {
	return &CallSession{store: store, callID: callID}
}

// State returns the session's current lifecycle state.
func (s *CallSession) State() State { return s.state }

// VerificationPassed reports whether identity verification succeeded.
func (s *CallSession) VerificationPassed() bool { return s.verificationPassed }

// CallCompleted reports whether the call reached a resolution.
func (s *CallSession) CallCompleted() bool { return s.callCompleted }

// CurrentCase returns the loaded case, or nil.
func (s *CallSession) CurrentCase() *casestore.FraudCase { return s.currentCase }

// TransactionConfirmed returns the recorded disposition: nil until the
// customer answers, then true for legitimate, false for fraud.
func (s *CallSession) TransactionConfirmed() *bool { return s.transactionConfirmed }

// LoadCase looks up the customer's fraud case by name. On a miss the
// session stays unchanged so the customer can retry with a corrected
// name.
func (s *CallSession) LoadCase(username string) string {
	log.Printf("[%s] Loading fraud case for: %s", s.callID, username)
	c := s.store.FindByName(username)
	if c == nil {
		metrics.LookupMisses.Inc()
		log.Printf("[%s] No case found for username: %s", s.callID, username)
		return fmt.Sprintf("I apologize, but I cannot find an account under the name %s. Please verify the spelling or contact our customer service line.", username)
	}
	s.currentCase = c
	if s.state == StateNoCase {
		s.state = StateCaseLoaded
	}
	log.Printf("[%s] Found case for %s - Card ending %s", s.callID, username, c.CardEnding)
	return fmt.Sprintf("Case found for %s. Security identifier: %s. Ready to verify customer.", username, c.SecurityIdentifier)
}

// VerifyCustomer compares the customer's answer against the stored
// security answer, trimmed and case-insensitively. After two failed
// attempts the session is terminally failed and further calls are
// rejected outright without touching the counter.
func (s *CallSession) VerifyCustomer(answer string) string {
	if s.currentCase == nil {
		return "Error: No case loaded. Please provide your name first."
	}
	if s.state == StateVerificationFailed {
		return "I'm sorry, but for security reasons, I cannot proceed without proper verification. Please visit your nearest branch or call our customer service line. Goodbye."
	}
	if s.verificationPassed {
		return "Verification successful. Thank you for confirming your identity."
	}

	s.verificationAttempts++
	log.Printf("[%s] Verification attempt %d for %s", s.callID, s.verificationAttempts, s.currentCase.UserName)

	want := strings.ToLower(strings.TrimSpace(s.currentCase.SecurityAnswer))
	got := strings.ToLower(strings.TrimSpace(answer))
	if got == want {
		s.verificationPassed = true
		s.state = StateVerified
		log.Printf("[%s] Verification successful for %s", s.callID, s.currentCase.UserName)
		return "Verification successful. Thank you for confirming your identity."
	}

	metrics.VerificationFailures.Inc()
	remaining := MaxVerificationAttempts - s.verificationAttempts
	if remaining > 0 {
		log.Printf("[%s] Verification failed for %s. %d attempts remaining", s.callID, s.currentCase.UserName, remaining)
		return fmt.Sprintf("I'm sorry, that answer doesn't match our records. You have %d attempt(s) remaining.", remaining)
	}
	s.state = StateVerificationFailed
	metrics.VerificationExhausted.Inc()
	log.Printf("[%s] Verification failed - maximum attempts reached for %s", s.callID, s.currentCase.UserName)
	return "I'm sorry, but for security reasons, I cannot proceed without proper verification. Please visit your nearest branch or call our customer service line. Goodbye."
}

// GetTransactionDetails returns the flagged-transaction summary to read
// to the customer. Requires a loaded case and passed verification; the
// two precondition failures produce distinct messages so an
// out-of-order tool call is diagnosable from the transcript.
func (s *CallSession) GetTransactionDetails() string {
	if s.currentCase == nil {
		return "Error: No case loaded."
	}
	if !s.verificationPassed {
		return "Error: Customer not verified yet."
	}
	c := s.currentCase
	log.Printf("[%s] Transaction details retrieved for %s", s.callID, c.UserName)
	return fmt.Sprintf(`We detected a suspicious transaction on your card ending in %s:
- Amount: %s
- Merchant: %s
- Category: %s
- Location: %s
- Time: %s
- Source: %s`, c.CardEnding, c.TransactionAmount, c.TransactionName, c.TransactionCategory, c.TransactionLocation, c.TransactionTime, c.TransactionSource)
}

// ConfirmTransaction records whether the customer made the transaction
// and persists the case resolution. A save failure is logged but the
// customer-facing string is still returned: the call has already
// promised the action, so the operator log is the place to surface the
// durability gap.
func (s *CallSession) ConfirmTransaction(madeTransaction bool) string {
	if s.currentCase == nil {
		return "Error: No case loaded."
	}
	if !s.verificationPassed {
		return "Error: Customer not verified."
	}
	c := s.currentCase
	v := madeTransaction
	s.transactionConfirmed = &v
	s.callCompleted = true
	s.state = StateResolved

	if err := s.store.Resolve(c, madeTransaction); err != nil {
		log.Printf("[%s] FAILED to persist resolution for %s: %v", s.callID, c.UserName, err)
	}
	metrics.CallsCompleted.Inc()
	metrics.Resolutions.WithLabelValues(string(c.Status)).Inc()

	if madeTransaction {
		log.Printf("[%s] Transaction marked as SAFE for %s", s.callID, c.UserName)
		return fmt.Sprintf("Transaction confirmed as safe. Card ending in %s remains active. No further action needed.", c.CardEnding)
	}
	log.Printf("[%s] Transaction marked as FRAUD for %s", s.callID, c.UserName)
	return fmt.Sprintf("Transaction marked as fraudulent. Card ending in %s has been blocked immediately. A replacement card will be mailed within 3-5 business days. A dispute has been filed and you will not be charged for this transaction.", c.CardEnding)
}
