// Package llm generates move commentary through an OpenAI-compatible chat
// completions endpoint. The model is asked for a strict JSON array, but
// real completions drift, so parsing tolerates wrapper objects and prose
// around the array.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/monitoring"
)

const defaultEndpoint = "https://api.openai.com/v1"

// defaultMaxTokens bounds the completion; twenty commented moves fit well
// under this.
const defaultMaxTokens = 10000

// ErrTruncated means the model hit the token limit before closing the
// JSON array.
var ErrTruncated = errors.New("llm output truncated")

// systemPrompt instructs the model to annotate reviewed moves and answer
// with a bare JSON array of {move, comment} objects.
const systemPrompt = `你是一個圍棋策略分析助手。下面提供了棋局歷史資料，每一個物件代表一步落子：

資料格式：
[
  {
    "move": <手數>,
    "color": <B/W>,
    "played": <玩家落子>,
    "ai_best": <AI 推薦落子>,
    "pv": [<AI 預測的主要變化順序>],
    "winrate_before": <當前落子方(color)下這手前勝率>,
    "winrate_after": <當前落子方(color)下這手後勝率>,
    "score_loss": <這手棋相對於 AI 推薦落子造成的局面劣化，以目數為單位，數值越大代表此手越不理想，偏離最佳落子的程度越大>
  },
  ...
]

請你做以下事情：
1. 分析每一步落子，找出**關鍵失誤或值得注意的手**（例如勝率損失大、錯過 AI 推薦落子）。
2. 針對每一步產生評論，評論可以包含：
   - 評估該手落子的好壞，重點說明勝率是增加還是下降以及變化幅度，請用生動、自然的語言描述局面變化，例如「這手讓局面穩定了一些」或「這手失誤讓黑棋優勢大幅縮小」
   - 根據 AI 推薦的最佳落子，推測如果下該手可能會如何改善，並用生動語言描述可能帶來的局面優勢，例如「若下此手，白棋可更穩固控制左上角」
   - 可以簡要指出主要變化序列(PV) 中值得注意的連續落子，但以勝率影響為主，並用自然語言點出關鍵節點，例如「接下來黑棋可能會沿著右下角尋找反攻空間」
   - 根據勝率變化，提供對後續策略的建議，例如應加強防守、擴張地盤或尋求更安全路線，用易懂、自然的語言提醒玩家應注意的重點
3. 評論中可以根據 score_loss 的大小簡要敘述說明，但不要直接說出 score_loss 的數值
4. 評論中的 PV 請說是 AI 推薦的變化序列，不要出現 PV 字眼，大家會看不懂，並且只要提到 AI 的第一手落子即可，不要提到其他落子
5. 請提到這手棋下之後勝率的變化，例如「這手棋下之後，黑棋勝率從 50% 下降到 40%」
6. 請將分析結果整理成 **JSON 陣列**，外層使用 '[]' 包起來，每個元素對應一手棋。禁止多餘文字，整個回傳必須是一個合法 JSON 陣列。格式如下：
[
  {
    "move": <手數>,
    "comment": "<對這手的文字評論>"
  }
  ...
]
7. JSON 中每手都要有 "comment"，即使該手不是關鍵手，也給簡短評論。
8. 用自然文字撰寫評論，不要再嵌套 JSON 或列表。`

// Comment is one generated annotation, keyed by move number.
type Comment struct {
	Move    int    `json:"move"`
	Comment string `json:"comment"`
}

// Config holds the LLM client configuration.
type Config struct {
	// Endpoint is the API base URL (default OpenAI)
	Endpoint string

	// APIKey authenticates the requests
	APIKey string

	// Model names the chat model (required)
	Model string

	// MaxTokens caps the completion length
	MaxTokens int

	// Breaker guards the calls when set
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics records call counts and latency when set
	Metrics *monitoring.Metrics
}

// Client calls the chat completions API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates an LLM client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Commentary asks the model to annotate the given moves. moves is
// marshaled verbatim into the user prompt, so it carries the exact JSON
// shape the system prompt describes.
func (c *Client) Commentary(ctx context.Context, moves any) ([]Comment, error) {
	userPrompt, err := buildPrompt(moves)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	comments, err := c.complete(ctx, userPrompt)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordLLMCall(err, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	c.logger.Printf("✅ Generated %d comments", len(comments))
	return comments, nil
}

func (c *Client) complete(ctx context.Context, userPrompt string) ([]Comment, error) {
	call := func() (interface{}, error) {
		body, err := json.Marshal(chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			MaxCompletionTokens: c.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.Endpoint+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("llm request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("llm returned HTTP %d: %s", resp.StatusCode, respBody)
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("llm error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, errors.New("llm returned no choices")
		}
		if parsed.Choices[0].FinishReason != "stop" {
			return nil, ErrTruncated
		}

		return parseComments(parsed.Choices[0].Message.Content)
	}

	var (
		result interface{}
		err    error
	)
	if c.cfg.Breaker != nil {
		result, err = c.cfg.Breaker.Execute(call)
	} else {
		result, err = call()
	}
	if err != nil {
		return nil, err
	}
	return result.([]Comment), nil
}

func buildPrompt(moves any) (string, error) {
	data, err := json.MarshalIndent(moves, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal moves: %w", err)
	}
	return "資料：\n\n" + string(data), nil
}

var arrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// parseComments extracts the comment array from a completion. Accepts a
// bare array, a wrapper object keyed moves/comments/data, or an array
// embedded in surrounding prose.
func parseComments(content string) ([]Comment, error) {
	if content == "" {
		return nil, errors.New("llm returned empty content")
	}

	var comments []Comment
	if err := json.Unmarshal([]byte(content), &comments); err == nil {
		return comments, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil {
		for _, key := range []string{"moves", "comments", "data"} {
			raw, ok := wrapper[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &comments); err == nil {
				return comments, nil
			}
		}
		return nil, errors.New("llm response object carries no comment array")
	}

	if match := arrayPattern.FindString(content); match != "" {
		if err := json.Unmarshal([]byte(match), &comments); err == nil {
			return comments, nil
		}
	}

	return nil, errors.New("llm response is not a comment array")
}

// CommentMap indexes comments by move number for delivery lookups.
func CommentMap(comments []Comment) map[int]string {
	m := make(map[int]string, len(comments))
	for _, c := range comments {
		m[c.Move] = c.Comment
	}
	return m
}
