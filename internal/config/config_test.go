package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("FRAUD_CASES_FILE", "")
	os.Setenv("LLM_MODEL_ID", "")
	os.Setenv("MURF_VOICE_ID", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.CasesFile == "" {
		t.Fatalf("expected default cases file path")
	}
	if cfg.LLMModel == "" {
		t.Fatalf("expected default llm model id")
	}
	if cfg.MurfVoiceID == "" {
		t.Fatalf("expected default murf voice id")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", ":9999")
	os.Setenv("FRAUD_CASES_FILE", "/tmp/cases.json")
	defer func() {
		os.Unsetenv("HTTP_ADDRESS")
		os.Unsetenv("FRAUD_CASES_FILE")
	}()
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("HTTPAddress = %q", cfg.HTTPAddress)
	}
	if cfg.CasesFile != "/tmp/cases.json" {
		t.Fatalf("CasesFile = %q", cfg.CasesFile)
	}
}
