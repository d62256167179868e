package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stimmlabs/stimm-core/internal/codec"
	"github.com/stimmlabs/stimm-core/internal/config"
)

// The model is instructed in German because the speakers it serves
// communicate in Swiss German or High German.
const systemInstructionText = `Du bist ein Experte für Dysarthrie. Deine Aufgabe ist es, Audioaufnahmen von einem Sprecher mit einer Sprachbehinderung zu transkribieren. Der Sprecher kommuniziert auf Schweizerdeutsch oder Hochdeutsch.
Du erhältst einige Beispiele, bei denen eine Audioaufnahme und die dazugehörige korrekte Transkription als klares Hochdeutsch bereitgestellt werden.
Basierend auf diesen Beispielen, transkribiere die finale Audioaufnahme.
Das Ziel ist es, die Absicht des Sprechers zu erfassen und in einen verständlichen Satz auf Hochdeutsch umzuwandeln. Gib NUR den transkribierten Text zurück, ohne zusätzliche Erklärungen oder einleitende Sätze.`

const (
	examplePreamble     = "Hier ist ein Beispielaudio eines Sprechers mit Dysarthrie:"
	finalPromptFewShot  = "Transkribiere nun, basierend auf den obigen Beispielen, diese neue Audioaufnahme:"
	finalPromptZeroShot = "Transkribiere diese Audioaufnahme eines Sprechers mit einer Sprachbehinderung (Dysarthrie). Gib nur den transkribierten Text als klares Hochdeutsch zurück."
)

const defaultMIMEType = "audio/webm"

// CredentialSource resolves the API key at request time so key changes take
// effect without restarting.
type CredentialSource func(ctx context.Context) (string, error)

// GeminiClient calls the Gemini generateContent REST API.
// Implements the Transcriber interface.
type GeminiClient struct {
	endpoint   string
	model      string
	credential CredentialSource
	client     *http.Client
	log        *slog.Logger
}

type generateRequest struct {
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	Contents          []content          `json:"contents"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// NewGeminiClient creates a Gemini transcription client.
func NewGeminiClient(cfg config.TranscribeConfig, credential CredentialSource, log *slog.Logger) *GeminiClient {
	return &GeminiClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		credential: credential,
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		log:        log,
	}
}

// Transcribe sends the audio with the priming examples as alternating
// user/model turns and returns the model's transcription.
func (g *GeminiClient) Transcribe(ctx context.Context, audio codec.Blob, examples []Example) (string, error) {
	key, err := g.credential(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrMissingCredential
	}

	reqBody := generateRequest{
		SystemInstruction: &systemInstruction{Parts: []part{{Text: systemInstructionText}}},
		Contents:          buildContents(audio, examples),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.endpoint, g.model, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.log.Debug("requesting transcription",
		slog.String("model", g.model),
		slog.Int("examples", len(examples)),
		slog.Int("audio_bytes", len(audio.Data)))

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Error != nil {
		if credentialRejected(result.Error) {
			return "", fmt.Errorf("%w: %s", ErrInvalidCredential, result.Error.Message)
		}
		return "", fmt.Errorf("gemini API error (status %d): %s", result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no transcription")
	}
	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

// buildContents lays out each example as a user turn carrying the audio
// followed by a model turn carrying the known transcription, then the final
// user turn with the audio to transcribe.
func buildContents(audio codec.Blob, examples []Example) []content {
	contents := make([]content, 0, 2*len(examples)+1)
	for _, ex := range examples {
		contents = append(contents, content{
			Role: "user",
			Parts: []part{
				{Text: examplePreamble},
				{InlineData: inlinePart(ex.Audio)},
			},
		})
		contents = append(contents, content{
			Role:  "model",
			Parts: []part{{Text: ex.Text}},
		})
	}

	finalPrompt := finalPromptZeroShot
	if len(examples) > 0 {
		finalPrompt = finalPromptFewShot
	}
	contents = append(contents, content{
		Role: "user",
		Parts: []part{
			{Text: finalPrompt},
			{InlineData: inlinePart(audio)},
		},
	})
	return contents
}

func inlinePart(b codec.Blob) *inlineData {
	mime := b.MIMEType
	if mime == "" {
		mime = defaultMIMEType
	}
	return &inlineData{
		MIMEType: mime,
		Data:     base64.StdEncoding.EncodeToString(b.Data),
	}
}

func credentialRejected(e *apiError) bool {
	return strings.Contains(e.Message, "API key not valid") ||
		e.Status == "PERMISSION_DENIED" ||
		e.Status == "UNAUTHENTICATED"
}
