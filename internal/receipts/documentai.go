package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/odyssey-erp/arap/internal/money"
)

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig addresses a Document AI processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

// DocumentAIAnalyzer reads receipts with a Google Document AI expense or invoice processor.
type DocumentAIAnalyzer struct {
	client    documentProcessor
	processor string
}

// NewDocumentAIAnalyzer dials the regional Document AI endpoint.
func NewDocumentAIAnalyzer(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIAnalyzer, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, errors.New("documentai: project and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai: create client: %w", err)
	}
	return newDocumentAIAnalyzer(client, cfg), nil
}

func newDocumentAIAnalyzer(client documentProcessor, cfg DocumentAIConfig) *DocumentAIAnalyzer {
	return &DocumentAIAnalyzer{
		client:    client,
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID),
	}
}

func (a *DocumentAIAnalyzer) Provider() string { return "documentai" }

// Close releases the underlying gRPC connection.
func (a *DocumentAIAnalyzer) Close() error { return a.client.Close() }

// Analyze picks the total_amount entity, falling back to the first amount entity.
func (a *DocumentAIAnalyzer) Analyze(ctx context.Context, img Image) (Extraction, error) {
	if len(img.Data) == 0 {
		return Extraction{}, analysisError(a.Provider(), "process document", errors.New("empty image"))
	}
	resp, err := a.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: a.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: img.Data, MimeType: img.MimeType},
		},
	})
	if err != nil {
		return Extraction{}, analysisError(a.Provider(), "process document", err)
	}
	if resp.GetDocument() == nil {
		return Extraction{}, analysisError(a.Provider(), "process document", errors.New("empty document in response"))
	}

	out := Extraction{Provider: a.Provider()}
	entity := findAmountEntity(resp.GetDocument().GetEntities())
	if entity == nil {
		out.Note = "no amount entity found"
		return out, nil
	}
	conf := float64(entity.GetConfidence())
	out.Confidence = &conf
	amount, ok := entityAmount(entity)
	if !ok {
		out.Note = fmt.Sprintf("unreadable amount %q", entity.GetMentionText())
		return out, nil
	}
	out.Amount = &amount
	return out, nil
}

func findAmountEntity(entities []*documentaipb.Document_Entity) *documentaipb.Document_Entity {
	var fallback *documentaipb.Document_Entity
	for _, e := range entities {
		switch strings.ToLower(e.GetType()) {
		case "total_amount":
			return e
		case "amount", "net_amount":
			if fallback == nil {
				fallback = e
			}
		}
	}
	return fallback
}

func entityAmount(e *documentaipb.Document_Entity) (money.Money, bool) {
	if mv := e.GetNormalizedValue().GetMoneyValue(); mv != nil {
		return money.FromCents(mv.GetUnits()*100 + int64(mv.GetNanos())/10_000_000), true
	}
	m, err := money.Parse(e.GetMentionText())
	if err != nil {
		return 0, false
	}
	return m, true
}
