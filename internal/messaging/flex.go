package messaging

import (
	"encoding/json"
	"fmt"
)

// maxBubbleComment caps comment text inside a bubble; the platform
// rejects flex payloads with oversized text nodes.
const maxBubbleComment = 500

// KeyMoveBubble describes one reviewed move rendered as a carousel
// bubble: animation preview on top, move facts and commentary below.
type KeyMoveBubble struct {
	MoveNumber    int
	Color         string // "B" or "W"
	Played        string
	Comment       string
	GIFURL        string
	WinrateBefore *float64 // percent, mover's perspective
	WinrateAfter  *float64
	ScoreLoss     *float64 // points
}

// Build assembles the bubble container JSON.
func (b KeyMoveBubble) Build() (json.RawMessage, error) {
	colorText := "黑"
	if b.Color == "W" {
		colorText = "白"
	}

	comment := b.Comment
	if runes := []rune(comment); len(runes) > maxBubbleComment {
		comment = string(runes[:maxBubbleComment]) + "..."
	}

	body := []interface{}{
		map[string]interface{}{
			"type":   "text",
			"text":   fmt.Sprintf("📍 第 %d 手（%s）", b.MoveNumber, colorText),
			"weight": "bold",
			"size":   "lg",
			"color":  "#1DB446",
		},
		map[string]interface{}{
			"type":   "text",
			"text":   fmt.Sprintf("落子位置：%s", b.Played),
			"size":   "sm",
			"color":  "#666666",
			"margin": "md",
		},
	}

	if b.WinrateBefore != nil && b.WinrateAfter != nil {
		diff := *b.WinrateBefore - *b.WinrateAfter
		text := fmt.Sprintf("勝率變化：%.1f%% → %.1f%%", *b.WinrateBefore, *b.WinrateAfter)
		color := "#4ECDC4"
		if diff > 0 {
			text += fmt.Sprintf(" (↓%.1f%%)", diff)
			color = "#FF6B6B"
		} else {
			text += fmt.Sprintf(" (↑%.1f%%)", -diff)
		}
		body = append(body, map[string]interface{}{
			"type":   "text",
			"text":   text,
			"size":   "sm",
			"color":  color,
			"margin": "sm",
		})
	}

	if b.ScoreLoss != nil {
		body = append(body, map[string]interface{}{
			"type":   "text",
			"text":   fmt.Sprintf("目差損失：%.1f 目", *b.ScoreLoss),
			"size":   "sm",
			"color":  "#FF6B6B",
			"margin": "sm",
		})
	}

	body = append(body,
		map[string]interface{}{"type": "separator", "margin": "md"},
		map[string]interface{}{
			"type":   "text",
			"text":   comment,
			"wrap":   true,
			"size":   "sm",
			"margin": "md",
			"color":  "#333333",
		},
	)

	bubble := map[string]interface{}{
		"type": "bubble",
		"hero": map[string]interface{}{
			"type":        "image",
			"url":         b.GIFURL,
			"size":        "full",
			"aspectRatio": "1:1",
			"aspectMode":  "cover",
			"action": map[string]interface{}{
				"type":  "uri",
				"uri":   b.GIFURL,
				"label": "觀看動畫",
			},
		},
		"body": map[string]interface{}{
			"type":     "box",
			"layout":   "vertical",
			"contents": body,
		},
		"footer": map[string]interface{}{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "sm",
			"contents": []interface{}{
				map[string]interface{}{
					"type":   "button",
					"style":  "primary",
					"height": "sm",
					"action": map[string]interface{}{
						"type":  "uri",
						"label": "🎬 觀看動態棋譜",
						"uri":   b.GIFURL,
					},
					"color": "#1DB446",
				},
			},
		},
	}

	raw, err := json.Marshal(bubble)
	if err != nil {
		return nil, fmt.Errorf("marshal bubble: %w", err)
	}
	return raw, nil
}

// KeyMoveAltText labels one carousel batch with its 1-based range.
func KeyMoveAltText(start, end, total int) string {
	return fmt.Sprintf("關鍵手數分析（%d-%d/%d）", start, end, total)
}

// RecordDownloadCard builds a flex message offering the current game
// record for download.
func RecordDownloadCard(fileURL, gameID string) (Flex, error) {
	bubble := map[string]interface{}{
		"type": "bubble",
		"body": map[string]interface{}{
			"type":   "box",
			"layout": "vertical",
			"contents": []interface{}{
				map[string]interface{}{
					"type":   "text",
					"text":   "📄 當前棋譜檔案",
					"weight": "bold",
					"size":   "xl",
					"color":  "#1DB446",
				},
				map[string]interface{}{
					"type":   "text",
					"text":   fmt.Sprintf("Game ID: %s", gameID),
					"size":   "sm",
					"color":  "#666666",
					"margin": "md",
				},
				map[string]interface{}{"type": "separator", "margin": "md"},
			},
		},
		"footer": map[string]interface{}{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "sm",
			"contents": []interface{}{
				map[string]interface{}{
					"type":   "button",
					"style":  "primary",
					"height": "sm",
					"action": map[string]interface{}{
						"type":  "uri",
						"label": "📥 下載棋譜檔案",
						"uri":   fileURL,
					},
					"color": "#1DB446",
				},
			},
		},
	}

	raw, err := json.Marshal(bubble)
	if err != nil {
		return Flex{}, fmt.Errorf("marshal download card: %w", err)
	}
	return NewFlex("當前棋譜檔案", raw), nil
}
