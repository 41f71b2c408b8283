package llm

import (
	"context"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

const DefaultModel = "gemini-2.5-pro"

type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient talks to the Gemini Developer API. The Files API used
// for document uploads is not available on the Vertex backend.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

// UploadDocument implements domain.Llm.
func (g *GeminiClient) UploadDocument(ctx context.Context, r io.Reader, displayName string) (domain.DocumentReference, error) {
	file, err := g.client.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    domain.PDFMimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return domain.DocumentReference{}, fmt.Errorf("upload file: %w", err)
	}

	log.WithCtx(ctx).Info("Document uploaded",
		zap.String("file", file.Name),
		zap.String("uri", file.URI))

	mime := file.MIMEType
	if mime == "" {
		mime = domain.PDFMimeType
	}
	return domain.DocumentReference{URI: file.URI, MIMEType: mime, Name: file.Name}, nil
}

// StreamGenerate implements domain.Llm.
func (g *GeminiClient) StreamGenerate(ctx context.Context, history []domain.ConversationTurn, temperature float32) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "text/plain",
	}
	contents := toContents(history)

	return func(yield func(string, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("generate content stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func toContents(history []domain.ConversationTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.Document != nil {
				parts = append(parts, genai.NewPartFromURI(p.Document.URI, p.Document.MIMEType))
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}

		var role genai.Role = genai.RoleUser
		if turn.Role == domain.ModelRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}
