// Package audit persists a per-call record after the line drops: which
// case was worked, how it was resolved, and the turn-by-turn transcript.
// Records land in Supabase storage as JSON; upload failures are logged
// by callers and never fail the call.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

// TurnRecord is one side of one exchange in the call.
type TurnRecord struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Record is the audit document for one finished call.
type Record struct {
	CallID      string       `json:"callId"`
	CaseName    string       `json:"caseName"`
	Disposition string       `json:"disposition"`
	Outcome     string       `json:"outcome,omitempty"`
	Turns       []TurnRecord `json:"turns"`
	StartedAt   time.Time    `json:"startedAt"`
	EndedAt     time.Time    `json:"endedAt"`
}

// Config holds Supabase connection settings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Uploader writes call records to a Supabase storage bucket.
type Uploader struct {
	client *supabase.Client
	bucket string
}

// New builds an Uploader. Returns an error instead of panicking so the
// server can run without audit storage configured.
func New(cfg Config) (*Uploader, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("audit: create supabase client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "call-audits"
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// Upload stores the record as <date>/<callID>.json in the bucket.
func (u *Uploader) Upload(ctx context.Context, rec Record) error {
	if rec.CallID == "" {
		return fmt.Errorf("audit: record missing call id")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	key := fmt.Sprintf("%s/%s.json", rec.EndedAt.UTC().Format("2006-01-02"), rec.CallID)

	done := make(chan error, 1)
	go func() {
		_, err := u.client.Storage.UploadFile(u.bucket, key, bytes.NewReader(data))
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("audit: upload %s: %w", key, err)
		}
	}
	return nil
}
