package factory

import (
	"fmt"

	"chatwave-be/pkg/llm"
	"chatwave-be/pkg/llm/huggingface"
	"chatwave-be/pkg/llm/ollama"
)

func NewLLMProvider(providerType, modelName, baseURL, hfKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(hfKey, "", modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
