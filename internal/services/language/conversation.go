package language

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

const conversationJobsPath = "/language/analyze-conversations/jobs"

// Conversation summary aspects.
const (
	AspectIssue        = "issue"
	AspectResolution   = "resolution"
	AspectRecap        = "recap"
	AspectChapterTitle = "chapterTitle"
	AspectNarrative    = "narrative"
)

// DefaultConversationAspects is used when SummarizeConversation gets none.
var DefaultConversationAspects = []string{AspectIssue, AspectResolution, AspectRecap}

// ConversationItem is one turn of a conversation. Role defaults to
// "Customer" and ParticipantID to "Participant_<n>".
type ConversationItem struct {
	Text          string
	Role          string
	ParticipantID string
}

// ConversationSummary holds one field per requested aspect.
type ConversationSummary struct {
	Issue         string
	Resolution    string
	Recap         string
	ChapterTitles []string
	Narratives    []string
	JobID         string
}

type conversationTurn struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Role          string `json:"role"`
	ParticipantID string `json:"participantId"`
}

type conversation struct {
	ID                string             `json:"id"`
	Language          string             `json:"language"`
	Modality          string             `json:"modality"`
	ConversationItems []conversationTurn `json:"conversationItems"`
}

type conversationInput struct {
	Conversations []conversation `json:"conversations"`
}

type conversationJobRequest struct {
	DisplayName   string            `json:"displayName"`
	AnalysisInput conversationInput `json:"analysisInput"`
	Tasks         []jobTask         `json:"tasks"`
}

type conversationResults struct {
	Conversations []struct {
		ID        string `json:"id"`
		Summaries []struct {
			Aspect string `json:"aspect"`
			Text   string `json:"text"`
		} `json:"summaries"`
	} `json:"conversations"`
	Errors []DocumentError `json:"errors"`
}

// SummarizeConversation submits an analyze-conversations job with one task
// per aspect and polls it until it finishes.
func (s *Service) SummarizeConversation(ctx context.Context, items []ConversationItem, aspects ...string) (ConversationSummary, error) {
	if len(items) == 0 {
		return ConversationSummary{}, domain.NewFailure(domain.FailureInvalidInput, "summarize conversation: no items")
	}
	if len(aspects) == 0 {
		aspects = DefaultConversationAspects
	}
	for _, a := range aspects {
		switch a {
		case AspectIssue, AspectResolution, AspectRecap, AspectChapterTitle, AspectNarrative:
		default:
			return ConversationSummary{}, domain.NewFailure(domain.FailureInvalidInput,
				fmt.Sprintf("summarize conversation: unknown aspect %q", a))
		}
	}

	turns := make([]conversationTurn, len(items))
	var text strings.Builder
	for i, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			return ConversationSummary{}, domain.NewFailure(domain.FailureInvalidInput,
				fmt.Sprintf("summarize conversation: item %d is empty", i+1))
		}
		t := conversationTurn{ID: strconv.Itoa(i + 1), Text: it.Text, Role: it.Role, ParticipantID: it.ParticipantID}
		if t.Role == "" {
			t.Role = "Customer"
		}
		if t.ParticipantID == "" {
			t.ParticipantID = fmt.Sprintf("Participant_%d", i+1)
		}
		turns[i] = t
		text.WriteString(it.Text)
	}

	body := conversationJobRequest{
		DisplayName: "cogcall conversation summary",
		AnalysisInput: conversationInput{Conversations: []conversation{{
			ID:                "conversation1",
			Language:          s.Language,
			Modality:          "text",
			ConversationItems: turns,
		}}},
	}
	for _, a := range aspects {
		body.Tasks = append(body.Tasks, jobTask{
			Kind:       "ConversationalSummarizationTask",
			TaskName:   a + "_task",
			Parameters: map[string]any{"summaryAspects": []string{a}},
		})
	}

	op := rpc.NewOperation(domain.KindConversation, text.String(), conversationJobsPath, body)
	op.Decode = operationLocation

	result, err := s.client.Execute(ctx, op)
	if err != nil {
		return ConversationSummary{}, err
	}

	state, err := s.poll(ctx, result.(string))
	if err != nil {
		return ConversationSummary{}, err
	}
	return parseConversationSummary(state)
}

func parseConversationSummary(state jobState) (ConversationSummary, error) {
	out := ConversationSummary{JobID: state.JobID}
	found := false

	for _, task := range state.Tasks.Items {
		if task.Status != "succeeded" {
			continue
		}
		var res conversationResults
		if err := json.Unmarshal(task.Results, &res); err != nil {
			return ConversationSummary{}, domain.WrapFailure(domain.FailureUnknown, err, "parse conversation results")
		}
		if len(res.Errors) > 0 {
			return ConversationSummary{}, documentFailure(res.Errors[0])
		}
		for _, conv := range res.Conversations {
			for _, sm := range conv.Summaries {
				found = true
				switch sm.Aspect {
				case AspectIssue:
					out.Issue = sm.Text
				case AspectResolution:
					out.Resolution = sm.Text
				case AspectRecap:
					out.Recap = sm.Text
				case AspectChapterTitle:
					out.ChapterTitles = append(out.ChapterTitles, sm.Text)
				case AspectNarrative:
					out.Narratives = append(out.Narratives, sm.Text)
				}
			}
		}
	}

	if !found {
		return ConversationSummary{}, domain.NewFailure(domain.FailureUnknown, "job finished without conversation summaries")
	}
	return out, nil
}
