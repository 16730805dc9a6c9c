package registry

import (
	"encoding/json"
	"fmt"
)

// Shape names the request/response dialect a provider speaks.
type Shape string

const (
	ShapeMessages        Shape = "messages"
	ShapePromptGenLen    Shape = "prompt_gen_len"
	ShapePromptMaxTokens Shape = "prompt_max_tokens"
	ShapeTextGeneration  Shape = "text_generation_config"
	ShapeOllamaGenerate  Shape = "ollama_generate"
)

const anthropicBedrockVersion = "bedrock-2023-05-31"

// Adapter pairs the request encoder and response decoder for one shape.
// Decode returns "" when the expected fields are absent.
type Adapter struct {
	Encode func(prompt string, p Profile) ([]byte, error)
	Decode func(body []byte) string
}

var adapters = map[Shape]Adapter{
	ShapeMessages:        {Encode: encodeMessages, Decode: decodeMessages},
	ShapePromptGenLen:    {Encode: encodePromptGenLen, Decode: decodePromptGenLen},
	ShapePromptMaxTokens: {Encode: encodePromptMaxTokens, Decode: decodePromptMaxTokens},
	ShapeTextGeneration:  {Encode: encodeTextGeneration, Decode: decodeTextGeneration},
	ShapeOllamaGenerate:  {Encode: encodeOllamaGenerate, Decode: decodeOllamaGenerate},
}

func adapterFor(shape Shape) Adapter {
	if a, ok := adapters[shape]; ok {
		return a
	}
	return adapters[ShapeMessages]
}

// KnownShape reports whether an adapter pair is registered for shape.
func KnownShape(shape Shape) bool {
	_, ok := adapters[shape]
	return ok
}

type messagesRequest struct {
	AnthropicVersion string         `json:"anthropic_version"`
	MaxTokens        int            `json:"max_tokens"`
	Temperature      float64        `json:"temperature"`
	Messages         []messageEntry `json:"messages"`
}

type messageEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func encodeMessages(prompt string, p Profile) ([]byte, error) {
	return json.Marshal(messagesRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		Messages:         []messageEntry{{Role: "user", Content: prompt}},
	})
}

func decodeMessages(body []byte) string {
	var resp messagesResponse
	if json.Unmarshal(body, &resp) != nil || len(resp.Content) == 0 {
		return ""
	}
	return resp.Content[0].Text
}

type promptGenLenRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
}

func encodePromptGenLen(prompt string, p Profile) ([]byte, error) {
	return json.Marshal(promptGenLenRequest{Prompt: prompt, MaxGenLen: p.MaxTokens, Temperature: p.Temperature})
}

func decodePromptGenLen(body []byte) string {
	var resp struct {
		Generation string `json:"generation"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Generation
}

type promptMaxTokensRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

func encodePromptMaxTokens(prompt string, p Profile) ([]byte, error) {
	return json.Marshal(promptMaxTokensRequest{
		Prompt:      fmt.Sprintf("<s>[INST] %s [/INST]", prompt),
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
}

func decodePromptMaxTokens(body []byte) string {
	var resp struct {
		Outputs []struct {
			Text string `json:"text"`
		} `json:"outputs"`
	}
	if json.Unmarshal(body, &resp) != nil || len(resp.Outputs) == 0 {
		return ""
	}
	return resp.Outputs[0].Text
}

type textGenerationRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig struct {
		MaxTokenCount int     `json:"maxTokenCount"`
		Temperature   float64 `json:"temperature"`
	} `json:"textGenerationConfig"`
}

func encodeTextGeneration(prompt string, p Profile) ([]byte, error) {
	req := textGenerationRequest{InputText: prompt}
	req.TextGenerationConfig.MaxTokenCount = p.MaxTokens
	req.TextGenerationConfig.Temperature = p.Temperature
	return json.Marshal(req)
}

func decodeTextGeneration(body []byte) string {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if json.Unmarshal(body, &resp) != nil || len(resp.Results) == 0 {
		return ""
	}
	return resp.Results[0].OutputText
}

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		NumPredict  int     `json:"num_predict"`
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

func encodeOllamaGenerate(prompt string, p Profile) ([]byte, error) {
	req := ollamaGenerateRequest{Model: p.ID, Prompt: prompt}
	req.Options.NumPredict = p.MaxTokens
	req.Options.Temperature = p.Temperature
	return json.Marshal(req)
}

func decodeOllamaGenerate(body []byte) string {
	var resp struct {
		Response string `json:"response"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Response
}
