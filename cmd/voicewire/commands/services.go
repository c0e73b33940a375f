package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/speech"
)

// Service endpoint flags shared by serve and autoconnect.
var (
	sttURL        string
	ttsURL        string
	llmURL        string
	llmAPIKey     string
	llmModel      string
	recordingsDir string
)

func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sttURL, "stt-url", "ws://localhost:8090/api/asr-streaming", "STT service WebSocket URL")
	cmd.Flags().StringVar(&ttsURL, "tts-url", "ws://localhost:8091/api/tts_streaming", "TTS service WebSocket URL")
	cmd.Flags().StringVar(&llmURL, "llm-url", "http://localhost:8000/v1", "LLM OpenAI-compatible base URL")
	cmd.Flags().StringVar(&llmAPIKey, "llm-api-key", "", "LLM API key (defaults to $VOICEWIRE_LLM_API_KEY)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "default", "LLM model name")
	cmd.Flags().StringVar(&recordingsDir, "recordings-dir", "", "directory for consented conversation traces (empty disables)")
}

func buildServices() *speech.Services {
	apiKey := llmAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("VOICEWIRE_LLM_API_KEY")
	}
	return &speech.Services{
		STTURL: sttURL,
		TTSURL: ttsURL,
		LLM:    speech.NewLLMClient(llmURL, apiKey, llmModel),
	}
}
