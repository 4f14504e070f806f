package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// dateContextInstruction anchors temporal language in prompts when the task
// pins research to a timeframe.
func dateContextInstruction(dateContext string) string {
	if dateContext == "" {
		return ""
	}
	return fmt.Sprintf(`
IMPORTANT TEMPORAL CONTEXT: All research and analysis should be performed as if the current date is within or relevant to: %s.
Terms like "current", "recent" or "now" refer to this timeframe, not to today.
`, dateContext)
}

// GenerateSearchQueries asks the reasoning model for the next hop's search
// queries. Queries already executed are excluded so hops do not repeat
// themselves.
func (a *Adapter) GenerateSearchQueries(ctx context.Context, model models.ModelInfo, originalQuery, findingsSummary string, executed []string, maxQueries int, dateContext, userID string) ([]string, models.TokenUsage, error) {
	var executedBlock string
	if len(executed) > 0 {
		executedBlock = "Queries already executed (do NOT repeat or trivially rephrase these):\n- " + strings.Join(executed, "\n- ") + "\n"
	}
	var findingsBlock string
	if findingsSummary != "" {
		findingsBlock = "Findings so far:\n" + findingsSummary + "\n"
	}

	prompt := fmt.Sprintf(`CRITICAL: Your output MUST be a single, valid JSON array of strings and nothing else. No explanatory text.
%s
You are a research assistant planning web searches to answer this question:
"%s"

%s%sGenerate up to %d distinct, specific search queries that would surface the missing information. Order them by expected usefulness.

Output format: ["query one", "query two"]`,
		dateContextInstruction(dateContext), originalQuery, findingsBlock, executedBlock, maxQueries)

	result, err := a.Execute(ctx, Request{
		Type:   "generate_queries",
		Prompt: prompt,
		Model:  model,
		Format: FormatJSON,
		UserID: userID,
	})
	if err != nil {
		return nil, models.TokenUsage{}, err
	}

	queries, err := decodeStringList(result.Output)
	if err != nil {
		return nil, result.Usage, fmt.Errorf("query generation returned unexpected JSON: %w", err)
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries, result.Usage, nil
}

// SynthesizeReport writes the final markdown report from retrieved chunks.
// Sources are referenced inline as [ref: URL]; the citation pass rewrites
// them into numbered markers afterwards.
func (a *Adapter) SynthesizeReport(ctx context.Context, model models.ModelInfo, originalQuery string, chunks []models.ContentChunk, targetWords int, dateContext, userID string) (string, models.TokenUsage, error) {
	var sb strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "--- Source %d (URL: %s) ---\n%s\n\n", i+1, chunk.URL, chunk.Text)
	}

	prompt := fmt.Sprintf(`You are a meticulous research writer. Write a comprehensive markdown report answering this question:
"%s"
%s
Rules:
- Base every claim on the source material below. Do not invent facts.
- Cite sources inline using the exact form [ref: URL] immediately after the claim they support, using the URL of the supporting source.
- Structure the report with markdown headings. Target length: about %d words.
- If the sources conflict, say so and cite both sides.
- Do not include a bibliography section; citations are inline only.

Source material:
%s`, originalQuery, dateContextInstruction(dateContext), targetWords, sb.String())

	result, err := a.Execute(ctx, Request{
		Type:   "synthesize_report",
		Prompt: prompt,
		Model:  model,
		Format: FormatText,
		UserID: userID,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	return result.Output, result.Usage, nil
}

// SummarizeText condenses long scraped content before chunk selection.
func (a *Adapter) SummarizeText(ctx context.Context, model models.ModelInfo, text, focusQuery, userID string) (string, models.TokenUsage, error) {
	prompt := fmt.Sprintf(`Summarize the following content, keeping every detail relevant to this research question: "%s".
Preserve names, dates, figures and direct quotes. Output plain text, no preamble.

Content:
%s`, focusQuery, text)

	result, err := a.Execute(ctx, Request{
		Type:   "summarize",
		Prompt: prompt,
		Model:  model,
		Format: FormatText,
		UserID: userID,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	return result.Output, result.Usage, nil
}

// FollowUpSuggestions proposes questions the user might ask next, based on
// the finished report.
func (a *Adapter) FollowUpSuggestions(ctx context.Context, model models.ModelInfo, originalQuery, report, userID string) ([]string, models.TokenUsage, error) {
	prompt := fmt.Sprintf(`CRITICAL: Your output MUST be a single, valid JSON array of strings and nothing else.

A user asked: "%s"

They received the report below. Suggest exactly 3 short follow-up questions the user is likely to ask next. Each must be answerable by further research and must not repeat the original question.

Report:
%s

Output format: ["question one", "question two", "question three"]`, originalQuery, report)

	result, err := a.Execute(ctx, Request{
		Type:   "follow_up",
		Prompt: prompt,
		Model:  model,
		Format: FormatJSON,
		UserID: userID,
	})
	if err != nil {
		return nil, models.TokenUsage{}, err
	}
	suggestions, err := decodeStringList(result.Output)
	if err != nil {
		return nil, result.Usage, fmt.Errorf("follow-up generation returned unexpected JSON: %w", err)
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions, result.Usage, nil
}

// decodeStringList accepts either a bare array of strings or an object with
// a single array value, which some models produce despite instructions.
func decodeStringList(raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return compactStrings(list), nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
		for _, v := range wrapper {
			if err := json.Unmarshal(v, &list); err == nil {
				return compactStrings(list), nil
			}
		}
	}
	return nil, fmt.Errorf("expected a JSON array of strings")
}

func compactStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
