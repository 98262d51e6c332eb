package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"poya.com/medplant-engine/internal/knowledge"
)

const (
	defaultChatModelName       = "gemini-1.5-flash-latest"
	defaultExtractionModelName = "gemini-1.5-flash-latest"
	defaultTitleModelName      = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are POYA - MEDPLANTAi, a helpful and knowledgeable assistant for medicinal plants. " +
		"You speak fluent Persian. Answer questions about plants, traditional medicine, and drug interactions scientifically."

	extractionSystemInstruction = "You are an expert data extractor for medicinal plants. " +
		"Your job is to convert unstructured data (images or docs) into a structured JSON database format."

	extractionPrompt = "Analyze this content (Image of a plant OR a document/textbook page about a plant). " +
		"Extract the structured data for the POYA - MEDPLANTAi knowledge base. Identify the plant name, " +
		"medicinal properties, phytochemicals, and safety data. If it's a text document, extract the info " +
		"mentioned. Output in Persian (except Scientific Name)."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum, in the conversation's own language. Just return the title itself, nothing else."

	// Stamped on every extracted record; the model's self-reported citation is discarded.
	extractedProvenance = "استخراج هوشمند از سند/تصویر آپلود شده"

	noPlantDataMessage = "اطلاعات گیاه دارویی مشخصی در این فایل یافت نشد."
)

// Exchange is one prior message handed to the model as context.
// Role is "user" or "model".
type Exchange struct {
	Role string
	Text string
}

// Oracle is the generative model behind the assistant. All operations are
// single request/response with no retries; callers own the failure policy.
type Oracle interface {
	Converse(ctx context.Context, message string, history []Exchange) (string, error)
	ExtractPlantRecord(ctx context.Context, media []byte, mimeType string) (knowledge.PlantRecord, error)
	SuggestTitle(ctx context.Context, summary string) (string, error)
}

type GeminiOracle struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiOracle builds the client. An empty API key still yields a
// working client whose calls are rejected by the service itself.
func NewGeminiOracle(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiOracle, error) {
	opt := option.WithAPIKey(apiKey)
	if apiKey == "" {
		opt = option.WithoutAuthentication()
	}
	client, err := genai.NewClient(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiOracle{client: client, logger: logger}, nil
}

func (o *GeminiOracle) Close() {
	if o.client != nil {
		if err := o.client.Close(); err != nil {
			o.logger.Warn("error closing GenAI client", zap.Error(err))
		}
	}
}

func (o *GeminiOracle) Converse(ctx context.Context, message string, history []Exchange) (string, error) {
	model := o.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	session := model.StartChat()
	for _, ex := range history {
		session.History = append(session.History, &genai.Content{
			Role:  ex.Role,
			Parts: []genai.Part{genai.Text(ex.Text)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// extractionSchema mirrors the PlantRecord shape plus the two out-of-band
// relevance fields the extraction contract depends on.
var extractionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"scientificName":   {Type: genai.TypeString},
		"localName":        {Type: genai.TypeString},
		"properties":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"molecularProfile": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"clinicalSafety": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"toxicity":         {Type: genai.TypeString},
				"drugInteractions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"warnings":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
		},
		"isPlantData": {Type: genai.TypeBoolean, Description: "True if the input contains information about a medicinal plant (image or text)"},
		"message":     {Type: genai.TypeString, Description: "Message to user if content is irrelevant"},
	},
}

func (o *GeminiOracle) ExtractPlantRecord(ctx context.Context, media []byte, mimeType string) (knowledge.PlantRecord, error) {
	model := o.client.GenerativeModel(defaultExtractionModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionSystemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema,
	}

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: media},
		genai.Text(extractionPrompt),
	)
	if err != nil {
		return knowledge.PlantRecord{}, fmt.Errorf("gemini extraction request failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return knowledge.PlantRecord{}, ErrEmptyResponse
	}
	return parseExtraction(text)
}

// parseExtraction decodes the model's structured output. It fails closed:
// an unparseable payload or one missing either name field yields an error,
// never a partial record.
func parseExtraction(raw string) (knowledge.PlantRecord, error) {
	var payload struct {
		knowledge.PlantRecord
		IsPlantData bool   `json:"isPlantData"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return knowledge.PlantRecord{}, fmt.Errorf("failed to decode extraction payload: %w", err)
	}

	if !payload.IsPlantData {
		msg := payload.Message
		if msg == "" {
			msg = noPlantDataMessage
		}
		return knowledge.PlantRecord{}, &NotPlantDataError{Message: msg}
	}

	if payload.ScientificName == "" || payload.LocalName == "" {
		return knowledge.PlantRecord{}, fmt.Errorf("extraction payload missing plant name fields")
	}

	record := payload.PlantRecord
	record.Provenance = extractedProvenance
	record.Origin = ""
	return record, nil
}

func (o *GeminiOracle) SuggestTitle(ctx context.Context, summary string) (string, error) {
	model := o.client.GenerativeModel(defaultTitleModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", summary)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	title := collectText(resp)
	if title == "" {
		return "", ErrEmptyResponse
	}
	return strings.Trim(title, "\"'\n\r\t ."), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
