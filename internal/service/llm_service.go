package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"go.uber.org/zap"
)

const (
	gigachatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigachatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"
)

// Phrases the model uses when it refuses instead of answering.
var refusalPhrases = []string{
	"cannot help",
	"cannot process",
	"can't help",
	"please provide",
	"не могу помочь",
	"не могу обработать",
	"предоставьте содержимое",
}

// LLMService talks to GigaChat. Chat completions go through gigago; file upload and vision
// use the REST API directly because the SDK does not cover attachments.
type LLMService struct {
	client     *gigago.Client
	modelName  string
	config     *config.GigaChatConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string

	mu          sync.Mutex
	models      map[string]*gigago.GenerativeModel
	accessToken string
}

func NewLLMService(cfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "GigaChat"
	}

	logger.Info("Using GigaChat model", zap.String("model", modelName))
	return &LLMService{
		client:     client,
		modelName:  modelName,
		config:     cfg,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    gigachatBaseURL,
		models:     make(map[string]*gigago.GenerativeModel),
	}, nil
}

type creativity int

const (
	precise creativity = iota
	balanced
	conversational
)

// model returns the generative model configured with the given system instruction.
// Models are created once per instruction and shared afterwards.
func (s *LLMService) model(instruction string, level creativity) *gigago.GenerativeModel {
	key := fmt.Sprintf("%d|%s", level, instruction)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.models[key]; ok {
		return m
	}
	m := s.client.GenerativeModel(s.modelName)
	m.SystemInstruction = instruction
	switch level {
	case precise:
		m.Temperature = 0.1
	case balanced:
		m.Temperature = 0.3
	default:
		m.Temperature = 0.7
	}
	s.models[key] = m
	return m
}

func (s *LLMService) generate(ctx context.Context, instruction, prompt string, level creativity) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := s.model(instruction, level).Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in LLM response", ErrMalformedResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Run dispatches one turn to the persona and splits the reply into text and tool calls.
func (s *LLMService) Run(ctx context.Context, persona Persona, contextText string) (AgentReply, error) {
	instruction := persona.Instructions
	if len(persona.Tools) > 0 {
		instruction += fmt.Sprintf(toolProtocol, strings.Join(persona.Tools, ", "))
	}

	content, err := s.generate(ctx, instruction, contextText, conversational)
	if err != nil {
		return AgentReply{}, err
	}

	reply := ParseAgentReply(content)
	s.logger.Debug("Agent reply generated",
		zap.String("agent", persona.Name),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Bool("tool_calls_reported", reply.ToolCallsReported),
	)
	return reply, nil
}

// ParseAgentReply strips a trailing {"tool_calls":[...]} line from content. When no such line
// parses, the reply is returned as text with ToolCallsReported unset.
func ParseAgentReply(content string) AgentReply {
	content = strings.TrimSpace(content)

	idx := strings.LastIndex(content, `{"tool_calls"`)
	if idx == -1 {
		idx = strings.LastIndex(content, `{ "tool_calls"`)
	}
	if idx == -1 {
		return AgentReply{Text: content}
	}

	jsonStr := strings.TrimSpace(content[idx:])
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	end := strings.LastIndex(jsonStr, "}")
	if end == -1 {
		return AgentReply{Text: content}
	}

	var payload struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(jsonStr[:end+1]), &payload); err != nil {
		return AgentReply{Text: content}
	}

	text := strings.TrimSpace(content[:idx])
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(text, "```json"), "```"))
	return AgentReply{
		Text:              text,
		ToolCalls:         payload.ToolCalls,
		ToolCallsReported: true,
	}
}

const summaryInstruction = `You summarize sales conversations of RegisterKaro, an Indian company incorporation service.
Return ONLY valid JSON: {"summary": "...", "short_summary": "..."}.
summary: at most 150 words covering who the visitor is, what they want, documents and payment so far.
short_summary: one sentence.`

// Summarize condenses messages into the rolling context summary.
func (s *LLMService) Summarize(ctx context.Context, messages []models.Message) (string, string, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	content, err := s.generate(ctx, summaryInstruction, b.String(), balanced)
	if err != nil {
		return "", "", err
	}

	var out struct {
		Summary      string `json:"summary"`
		ShortSummary string `json:"short_summary"`
	}
	if err := decodeJSONObject(content, &out); err != nil {
		return "", "", err
	}
	if out.Summary == "" {
		return "", "", fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	return sanitizeText(out.Summary), sanitizeText(out.ShortSummary), nil
}

const classifyInstruction = `You verify identity and address proof documents for Indian company incorporation.
Accepted: PAN card, Aadhaar card, passport, voter ID, driving licence, utility bill, bank statement.
Return ONLY valid JSON: {"is_valid": true|false, "analysis": "..."}.
A document is valid when it is one of the accepted kinds, legible and not blurry.`

// ClassifyDocument judges extracted document text.
func (s *LLMService) ClassifyDocument(ctx context.Context, text string) (DocumentVerdict, error) {
	content, err := s.generate(ctx, classifyInstruction, "Document text:\n"+text, precise)
	if err != nil {
		return DocumentVerdict{}, err
	}

	var out struct {
		IsValid  bool   `json:"is_valid"`
		Analysis string `json:"analysis"`
	}
	if err := decodeJSONObject(content, &out); err != nil {
		// Fall back to reading the free-text verdict.
		return HeuristicVerdict(content), nil
	}
	return DocumentVerdict{IsValid: out.IsValid, Analysis: sanitizeText(out.Analysis)}, nil
}

// decodeJSONObject extracts the outermost JSON object from an LLM reply.
func decodeJSONObject(content string, out any) error {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("%w: model refused: %s", ErrMalformedResponse, content)
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, content)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// token returns the cached REST access token, fetching one when needed.
func (s *LLMService) token(ctx context.Context, refresh bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && !refresh {
		return s.accessToken, nil
	}
	token, err := getAccessToken(ctx, s.config, s.httpClient, s.logger)
	if err != nil {
		return "", err
	}
	s.accessToken = token
	return token, nil
}

// getAccessToken exchanges the Base64 API key for an OAuth access token.
func getAccessToken(ctx context.Context, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	rqUID := uuid.New().String()

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gigachatOAuthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", rqUID)
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("OAuth request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(bodyBytes)),
			zap.String("rq_uid", rqUID),
		)
		return "", fmt.Errorf("OAuth failed with status %d", resp.StatusCode)
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrMalformedResponse)
	}

	logger.Info("Access token obtained")
	return oauthResp.AccessToken, nil
}

// UploadFile uploads a file for use as a chat attachment and returns its id.
func (s *LLMService) UploadFile(ctx context.Context, path string) (string, error) {
	fileID, status, err := s.uploadFile(ctx, path, false)
	if status == http.StatusUnauthorized {
		fileID, _, err = s.uploadFile(ctx, path, true)
	}
	return fileID, err
}

func (s *LLMService) uploadFile(ctx context.Context, path string, refresh bool) (string, int, error) {
	token, err := s.token(ctx, refresh)
	if err != nil {
		return "", 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileName := filepath.Base(path)
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", 0, fmt.Errorf("failed to write purpose field: %w", err)
	}
	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {mimeTypeFor(fileName)},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", 0, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/files", &body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", resp.StatusCode, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	s.logger.Info("File uploaded to GigaChat", zap.String("file_id", uploadResp.ID))
	return uploadResp.ID, resp.StatusCode, nil
}

const visionPrompt = `Describe this document. State which kind of identity or address proof it is,
transcribe the visible text, and say whether it is clear and legible or blurry.`

// ExtractTextFromImage uploads the image and asks the vision model to transcribe it.
func (s *LLMService) ExtractTextFromImage(ctx context.Context, imagePath string) (string, error) {
	fileID, err := s.UploadFile(ctx, imagePath)
	if err != nil {
		return "", err
	}

	token, err := s.token(ctx, false)
	if err != nil {
		return "", err
	}

	requestBody := map[string]any{
		"model": s.modelName,
		"messages": []map[string]any{
			{
				"role":        "user",
				"content":     visionPrompt,
				"attachments": [][]string{{fileID}},
			},
		},
		"temperature": 0.1,
		"stream":      false,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision API failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var visionResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(visionResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from Vision API", ErrMalformedResponse)
	}

	text := strings.TrimSpace(visionResp.Choices[0].Message.Content)
	s.logger.Info("Text extracted via GigaChat Vision", zap.Int("text_length", len(text)))
	return sanitizeText(text), nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func mimeTypeFor(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
