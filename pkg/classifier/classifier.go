// Package classifier implements the Intent Classifier of spec.md §4.1:
// fast-path heuristics, escalation to a small router model, and a single
// further escalation to a larger reasoning model on low confidence.
// Grounded on kadirpekel/hector's reasoning-strategy selection
// (pkg/reasoning) which also mixes cheap heuristics with model calls
// before committing to an expensive path.
package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/clenoble/sovereign/pkg/logger"
	"github.com/clenoble/sovereign/pkg/model"
	"github.com/clenoble/sovereign/pkg/types"
)

// escalationThreshold is the router-confidence floor below which the
// classifier escalates once to the reasoning model (§9 open question,
// resolved as "escalate once on confidence < 0.7").
const escalationThreshold = 0.7

// heuristicConfidence is the confidence fast-path rules report when they
// fire unambiguously (§4.1: "confidence >= 0.85").
const heuristicConfidence = 0.9

// Context carries the classifier's situational inputs (active document,
// active thread, recent intents, profile hints). All fields are
// optional.
type Context struct {
	ActiveDocumentID string
	ActiveThreadID   string
	RecentActions    []types.ActionVariant
}

// Classifier maps free-form text to a typed Intent.
type Classifier struct {
	registry    *model.Registry
	routerModel string
	reasonModel string
}

// New builds a classifier against a loaded model registry. routerModel
// and reasonModel name the model ids to request for each tier. An empty
// routerModel makes every input the fast path misses classify as
// Unknown; an empty reasonModel disables escalation, so the router's
// result is returned as is.
func New(registry *model.Registry, routerModel, reasonModel string) *Classifier {
	return &Classifier{registry: registry, routerModel: routerModel, reasonModel: reasonModel}
}

type heuristicRule struct {
	pattern *regexp.Regexp
	action  types.ActionVariant
}

var heuristics = []heuristicRule{
	{regexp.MustCompile(`(?i)\bcreate\s+(a\s+)?thread\b`), types.ActionCreateThread},
	{regexp.MustCompile(`(?i)\brename\s+(the\s+)?(thread|project)\b`), types.ActionRenameThread},
	{regexp.MustCompile(`(?i)\bdelete\s+(the\s+)?(thread|project)\b`), types.ActionDeleteThread},
	{regexp.MustCompile(`(?i)\bdelete\s+(the\s+)?(document|note)\b`), types.ActionDeleteDocument},
	{regexp.MustCompile(`(?i)\bmove\b.*\bto\b`), types.ActionMoveDocument},
	{regexp.MustCompile(`(?i)\b(restore|revert)\b`), types.ActionRestore},
	{regexp.MustCompile(`(?i)\b(history|versions?)\b`), types.ActionHistory},
	{regexp.MustCompile(`(?i)\bcreate\s+(a\s+)?(note|document)\b`), types.ActionCreateDocument},
	{regexp.MustCompile(`(?i)\b(summari[sz]e)\b`), types.ActionSummarize},
	{regexp.MustCompile(`(?i)\b(contacts?)\b`), types.ActionListContacts},
	{regexp.MustCompile(`(?i)\b(messages?|inbox)\b`), types.ActionViewMessages},
	{regexp.MustCompile(`(?i)\b(search|find)\b`), types.ActionSearch},
	{regexp.MustCompile(`(?i)\bopen\b`), types.ActionOpen},
}

// Classify maps text to an Intent. It never fails destructively: any
// internal error (backend unavailable, decode failure) degrades to
// Intent::Unknown with confidence 0, per §4.1's failure semantics.
func (c *Classifier) Classify(ctx context.Context, text string, cctx Context) types.Intent {
	if strings.TrimSpace(text) == "" {
		return types.UnknownIntent()
	}

	if intent, ok := c.fastPath(text); ok {
		return intent
	}

	if c.registry == nil || c.routerModel == "" {
		return types.UnknownIntent()
	}

	intent, confidence, err := c.askModel(ctx, model.RoleRouter, c.routerModel, text, false)
	if err != nil {
		logger.Get().Warn("classifier: router backend error, degrading to unknown", "error", err)
		return types.UnknownIntent()
	}
	if confidence >= escalationThreshold || c.reasonModel == "" {
		return intent
	}

	escalated, escConfidence, err := c.askModel(ctx, model.RoleReasoning, c.reasonModel, text, true)
	if err != nil {
		logger.Get().Warn("classifier: reasoning escalation failed, keeping router result", "error", err)
		return intent
	}
	if escConfidence > confidence {
		return escalated
	}
	return intent
}

// fastPath runs the keyword/phrase rules. The first matching rule wins;
// rules are ordered most-specific first so e.g. "rename thread" is
// caught before a generic "rename" rule would exist.
func (c *Classifier) fastPath(text string) (types.Intent, bool) {
	for _, rule := range heuristics {
		if rule.pattern.MatchString(text) {
			return types.Intent{
				Action:     rule.action,
				Confidence: heuristicConfidence,
				Slots:      extractSlots(text),
			}, true
		}
	}
	return types.Intent{}, false
}

type modelIntentResponse struct {
	Action     string            `json:"action"`
	Confidence float64           `json:"confidence"`
	Slots      map[string]string `json:"slots"`
}

func (c *Classifier) askModel(ctx context.Context, role model.Role, modelID, text string, rationale bool) (types.Intent, float64, error) {
	prompt := buildClassificationPrompt(text, rationale)
	raw, err := c.registry.GenerateText(ctx, role, modelID, prompt, model.SamplingParams{Temperature: 0, MaxTokens: 256})
	if err != nil {
		return types.Intent{}, 0, err
	}

	jsonBody := extractJSON(raw)
	var parsed modelIntentResponse
	if err := json.Unmarshal([]byte(jsonBody), &parsed); err != nil {
		return types.UnknownIntent(), 0, nil
	}

	action := normaliseAction(parsed.Action)
	if parsed.Slots == nil {
		parsed.Slots = map[string]string{}
	}
	return types.Intent{Action: action, Confidence: parsed.Confidence, Slots: parsed.Slots}, parsed.Confidence, nil
}

func buildClassificationPrompt(text string, rationale bool) string {
	var sb strings.Builder
	sb.WriteString("Classify the user's request into exactly one of: search, open, create_document, ")
	sb.WriteString("delete_document, create_thread, rename_thread, delete_thread, move_document, list_contacts, ")
	sb.WriteString("view_messages, summarize, chat, history, restore, unknown.\n")
	if rationale {
		sb.WriteString("Think step by step, then ")
	}
	sb.WriteString("Respond with only a JSON object: {\"action\": \"...\", \"confidence\": 0.0-1.0, \"slots\": {}}.\n")
	sb.WriteString("Request: ")
	sb.WriteString(text)
	return sb.String()
}

// extractJSON pulls the first {...} block out of free-form model output,
// tolerating a chain-of-thought preamble from the reasoning escalation.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

func normaliseAction(s string) types.ActionVariant {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "search":
		return types.ActionSearch
	case "open":
		return types.ActionOpen
	case "create_document", "create_note", "new_document":
		return types.ActionCreateDocument
	case "create_thread", "new_thread", "new_project":
		return types.ActionCreateThread
	case "rename_thread", "rename_project":
		return types.ActionRenameThread
	case "delete_thread", "delete_project":
		return types.ActionDeleteThread
	case "delete_document", "delete_note":
		return types.ActionDeleteDocument
	case "move_document":
		return types.ActionMoveDocument
	case "list_contacts":
		return types.ActionListContacts
	case "view_messages":
		return types.ActionViewMessages
	case "summarize", "summarise":
		return types.ActionSummarize
	case "chat":
		return types.ActionChat
	case "history":
		return types.ActionHistory
	case "restore", "revert":
		return types.ActionRestore
	default:
		return types.ActionUnknown
	}
}

var quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// extractSlots pulls a free-text slot out of quoted substrings, a cheap
// heuristic good enough for the fast-path rules (e.g. `rename thread
// "Research" to "Archive"`); the router/reasoning models fill in
// structured slots for everything else.
func extractSlots(text string) map[string]string {
	slots := map[string]string{}
	matches := quotedPattern.FindAllStringSubmatch(text, -1)
	for i, m := range matches {
		val := m[1]
		if val == "" {
			val = m[2]
		}
		if i == 0 {
			slots["primary"] = val
		} else {
			slots["secondary"] = val
		}
	}
	return slots
}
