package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckforge/deckforge/internal/domain"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel  = "google/gemini-2.5-flash-preview-09-2025"

	// defaultTimeout bounds a single generation call, including retries of
	// the underlying HTTP request.
	defaultTimeout = 2 * time.Minute
)

// Client generates Beamer markup for a page via the OpenRouter chat
// completions API. It implements domain.ContentGenerator.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	retry      *RetryConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc *RetryConfig) Option {
	return func(c *Client) {
		if rc != nil {
			c.retry = rc
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// NewClient creates a new generation client. An empty model selects the
// default multimodal model.
func NewClient(apiKey, model string, logger zerolog.Logger, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openRouterURL,
		timeout:    defaultTimeout,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "llm").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate produces Beamer frame markup for one page. The call is bounded by
// the client timeout and retried with exponential backoff on transient HTTP
// failures; exhausted attempts surface as a GenerationError.
func (c *Client) Generate(ctx context.Context, page domain.PageRecord, imageDataURI string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(page, imageDataURI)
	if err != nil {
		return "", domain.GenerationError("failed to build request", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.GenerationError("failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Title", "deckforge")

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", domain.GenerationError(fmt.Sprintf("request failed for page %d", page.Index), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", domain.GenerationError(
			fmt.Sprintf("API returned status %d for page %d: %s", resp.StatusCode, page.Index, string(bodyBytes)), nil)
	}

	markup, err := c.collectStream(resp.Body)
	if err != nil {
		return "", domain.GenerationError(fmt.Sprintf("failed to read response for page %d", page.Index), err)
	}
	if strings.TrimSpace(markup) == "" {
		return "", domain.GenerationError(fmt.Sprintf("empty response for page %d", page.Index), nil)
	}

	return markup, nil
}

// buildRequest constructs the multimodal API request: the page structure as
// text context plus the full-page render as a data-URI image.
func (c *Client) buildRequest(page domain.PageRecord, imageDataURI string) (*Request, error) {
	userPrompt, err := buildPageContext(page)
	if err != nil {
		return nil, err
	}

	system := Message{
		Role:    "system",
		Content: []ContentPart{{Type: "text", Text: systemPrompt}},
	}

	user := Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: userPrompt},
			{Type: "image_url", ImageURL: &ImageURL{URL: imageDataURI}},
		},
	}

	return &Request{
		Model:       c.model,
		Messages:    []Message{system, user},
		Stream:      true,
		Temperature: 0.1,
	}, nil
}

// collectStream accumulates the streamed chunks into the full markup string.
func (c *Client) collectStream(body io.Reader) (string, error) {
	resultCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- NewStreamParser(body).ParseAll(resultCh)
		close(resultCh)
	}()

	var markup strings.Builder
	for chunk := range resultCh {
		markup.WriteString(chunk)
	}

	if err := <-errCh; err != nil {
		return "", err
	}
	return markup.String(), nil
}

const systemPrompt = `You are a LaTeX expert. Convert this slide to a Beamer frame.
Use this template:

\begin{frame}
\frametitle{Summary}
% Add bullet points using
    \begin{enumerate}
    \item TBD
    \end{enumerate}
% Add images using \includegraphics
\end{frame}

Remove the page number.
Return ONLY the LaTeX code, no explanations.`

// buildPageContext serializes the page record into the text part of the
// generation request.
func buildPageContext(page domain.PageRecord) (string, error) {
	elements, err := json.Marshal(page.TextElements)
	if err != nil {
		return "", fmt.Errorf("failed to serialize text elements: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Slide content:\n")
	fmt.Fprintf(&b, "Text elements: %s\n", elements)
	fmt.Fprintf(&b, "Images: %s\n", strings.Join(page.ImageRefs, ", "))
	fmt.Fprintf(&b, "Page dimensions: (%g, %g)\n", page.Width, page.Height)
	return b.String(), nil
}
