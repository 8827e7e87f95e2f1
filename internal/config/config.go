package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	CasesFile    string
	AuthPassword string

	DeepgramAPIKey   string
	DeepgramTTSModel string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	MurfAPIKey  string
	MurfVoiceID string
	MurfStyle   string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioPublicBaseURL string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	casesFile := os.Getenv("FRAUD_CASES_FILE")
	if casesFile == "" {
		casesFile = "shared-data/fraud_cases.json"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}
	deepgramTTSModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if deepgramTTSModel == "" {
		deepgramTTSModel = "aura-2-thalia-en"
	}

	llmKey := os.Getenv("LLM_API_KEY")
	if llmKey == "" {
		log.Println("Warning: LLM_API_KEY not set - agent replies will not work")
	}
	llmModel := os.Getenv("LLM_MODEL_ID")
	if llmModel == "" {
		llmModel = "gpt-oss-120b"
	}

	murfKey := os.Getenv("MURF_API_KEY")
	if murfKey == "" {
		log.Println("Warning: MURF_API_KEY not set - falling back to Deepgram TTS")
	}
	murfVoice := os.Getenv("MURF_VOICE_ID")
	if murfVoice == "" {
		murfVoice = "en-US-ryan"
	}
	murfStyle := os.Getenv("MURF_STYLE")
	if murfStyle == "" {
		murfStyle = "Conversational"
	}

	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "call-audits"
	}

	log.Printf("config: HTTP_ADDRESS=%s FRAUD_CASES_FILE=%s", addr, casesFile)
	return Config{
		HTTPAddress:  addr,
		CasesFile:    casesFile,
		AuthPassword: os.Getenv("CALL_AUTH_PASSWORD"),

		DeepgramAPIKey:   deepgramKey,
		DeepgramTTSModel: deepgramTTSModel,

		LLMAPIKey:  llmKey,
		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMModel:   llmModel,

		MurfAPIKey:  murfKey,
		MurfVoiceID: murfVoice,
		MurfStyle:   murfStyle,

		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioPublicBaseURL: os.Getenv("TWILIO_PUBLIC_BASE_URL"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     supabaseBucket,
	}
}
