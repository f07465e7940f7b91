package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/civicconnect/civic/internal/classify"
	"github.com/civicconnect/civic/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// newClassifier returns a category classifier, LLM-backed when a key is configured.
func newClassifier() *classify.Classifier {
	if c := newLLMClient(); c != nil {
		return classify.New(c, logger)
	}
	return classify.New(nil, logger)
}
