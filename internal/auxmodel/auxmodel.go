// Package auxmodel implements the auxiliary lightweight-model endpoints:
// small, fixed-template prompts run in a disposable sandbox, with tolerant
// JSON-fragment extraction and deterministic keyword fallbacks so a noisy
// model response never surfaces as a 500.
package auxmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/sandbox"
)

// Invoker runs one small-model prompt to completion inside a disposable
// sandbox and returns its raw merged stdout/stderr output.
type Invoker struct {
	mgr *sandbox.Manager
	rt  *sandbox.Runtime
	cap time.Duration
}

func NewInvoker(mgr *sandbox.Manager, rt *sandbox.Runtime, cfg config.Config) *Invoker {
	return &Invoker{mgr: mgr, rt: rt, cap: time.Duration(cfg.Tuning.DisposableCapSeconds) * time.Second}
}

func (inv *Invoker) run(ctx context.Context, purpose, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.cap)
	defer cancel()

	h, err := inv.mgr.AcquireDisposable(ctx, purpose)
	if err != nil {
		return "", err
	}
	defer func() { _ = inv.mgr.Release(context.Background(), h) }()

	encoded := agentdriver.ShellQuote(prompt)
	cmd := fmt.Sprintf("echo %s | agent-cli --model small --output-format text", encoded)

	var out strings.Builder
	if _, err := inv.rt.Exec(ctx, h.ContainerID, []string{"sh", "-c", cmd}, sandbox.ExecOptions{}, nil, &out, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// extractJSONObject finds the first balanced {...} fragment in raw,
// tolerating surrounding prose the small model often adds.
func extractJSONObject(raw string) (map[string]any, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(raw[start:i+1]), &obj); err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}
	return nil, false
}

// DetectIntent classifies a chat message as restore/chat/edit.
func (inv *Invoker) DetectIntent(ctx context.Context, message string) string {
	prompt := fmt.Sprintf(
		"Classify the user's intent as exactly one of restore, chat, edit. Respond with JSON {\"intent\":\"...\"}.\nMessage: %s",
		message,
	)
	raw, err := inv.run(ctx, "detect-intent", prompt)
	if err == nil {
		if obj, ok := extractJSONObject(raw); ok {
			if intent, ok := obj["intent"].(string); ok {
				intent = strings.ToLower(strings.TrimSpace(intent))
				if intent == "restore" || intent == "chat" || intent == "edit" {
					return intent
				}
			}
		}
	}
	return fallbackIntent(message)
}

func fallbackIntent(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "revert"), strings.Contains(lower, "undo"), strings.Contains(lower, "restore"), strings.Contains(lower, "rollback"):
		return "restore"
	case strings.Contains(lower, "add"), strings.Contains(lower, "change"), strings.Contains(lower, "fix"), strings.Contains(lower, "update"), strings.Contains(lower, "make"):
		return "edit"
	default:
		return "chat"
	}
}

// DetectSkills suggests which named skills are relevant to a requested
// change.
func (inv *Invoker) DetectSkills(ctx context.Context, message, dimension, existingCode string) []string {
	prompt := fmt.Sprintf(
		"List relevant skill names for this %s change as JSON {\"skills\":[...]}.\nMessage: %s\nExisting code present: %v",
		dimension, message, existingCode != "",
	)
	raw, err := inv.run(ctx, "detect-skills", prompt)
	if err == nil {
		if obj, ok := extractJSONObject(raw); ok {
			if list, ok := obj["skills"].([]any); ok {
				out := make([]string, 0, len(list))
				for _, v := range list {
					if s, ok := v.(string); ok && s != "" {
						out = append(out, s)
					}
				}
				if len(out) > 0 {
					return out
				}
			}
		}
	}
	return fallbackSkills(dimension)
}

func fallbackSkills(dimension string) []string {
	switch strings.ToLower(strings.TrimSpace(dimension)) {
	case "art", "visual", "sprites":
		return []string{"nanobanana", "bria-rmbg"}
	default:
		return nil
	}
}

// ChatResult is the response shape for /chat_haiku.
type ChatResult struct {
	Message     string
	Suggestions []string
	Raw         string // populated only when raw_output was requested
}

// Chat answers a free-form chat message, optionally returning raw model
// output instead of the structured shape.
func (inv *Invoker) Chat(ctx context.Context, message, gameSpec, systemPrompt string, rawOutput bool) ChatResult {
	prompt := message
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + message
	}
	if gameSpec != "" {
		prompt += "\n\nCurrent game spec:\n" + gameSpec
	}
	raw, err := inv.run(ctx, "chat", prompt)
	if err != nil {
		return ChatResult{Message: "申し訳ございません、只今応答できません。"}
	}
	if rawOutput {
		return ChatResult{Raw: raw}
	}
	if obj, ok := extractJSONObject(raw); ok {
		result := ChatResult{}
		if m, ok := obj["message"].(string); ok {
			result.Message = m
		}
		if list, ok := obj["suggestions"].([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					result.Suggestions = append(result.Suggestions, s)
				}
			}
		}
		if result.Message != "" {
			return result
		}
	}
	return ChatResult{Message: strings.TrimSpace(raw)}
}

// PublishInfo is the response shape for /generate_publish_info.
type PublishInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	HowToPlay   string   `json:"howToPlay"`
	Tags        []string `json:"tags"`
}

// GeneratePublishInfo derives a store-listing blurb from the generated
// game's code and/or spec.
func (inv *Invoker) GeneratePublishInfo(ctx context.Context, projectName, gameCode, specContent string) PublishInfo {
	prompt := fmt.Sprintf(
		"Generate publish metadata as JSON {\"title\":...,\"description\":...,\"howToPlay\":...,\"tags\":[...]} for a browser game named %q.\nSpec:\n%s",
		projectName, specContent,
	)
	raw, err := inv.run(ctx, "publish-info", prompt)
	if err == nil {
		if obj, ok := extractJSONObject(raw); ok {
			info := PublishInfo{Title: projectName}
			if v, ok := obj["title"].(string); ok && v != "" {
				info.Title = v
			}
			if v, ok := obj["description"].(string); ok {
				info.Description = v
			}
			if v, ok := obj["howToPlay"].(string); ok {
				info.HowToPlay = v
			}
			if list, ok := obj["tags"].([]any); ok {
				for _, t := range list {
					if s, ok := t.(string); ok {
						info.Tags = append(info.Tags, s)
					}
				}
			}
			if info.Description != "" {
				return info
			}
		}
	}
	return PublishInfo{
		Title:       projectName,
		Description: "A browser game created with DreamCore.",
		HowToPlay:   "Use your keyboard or mouse to play.",
		Tags:        []string{"browser-game"},
	}
}
