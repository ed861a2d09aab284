package language

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

// SummaryMode selects the summarization task.
type SummaryMode string

const (
	Extractive  SummaryMode = "extractive"
	Abstractive SummaryMode = "abstractive"
)

// SummaryOptions configure Summarize.
type SummaryOptions struct {
	Mode SummaryMode
	// SentenceCount is the extractive sentence count, 1..20 (default 3).
	SentenceCount int
	// Length is the abstractive summary length: short, medium or long (default medium).
	Length string
}

func (o *SummaryOptions) normalize() error {
	if o.Mode == "" {
		o.Mode = Extractive
	}
	switch o.Mode {
	case Extractive:
		if o.SentenceCount == 0 {
			o.SentenceCount = 3
		}
		if o.SentenceCount < 1 || o.SentenceCount > 20 {
			return fmt.Errorf("sentence count %d out of range 1..20", o.SentenceCount)
		}
	case Abstractive:
		if o.Length == "" {
			o.Length = "medium"
		}
		switch o.Length {
		case "short", "medium", "long":
		default:
			return fmt.Errorf("unknown summary length %q", o.Length)
		}
	default:
		return fmt.Errorf("unknown summary mode %q", o.Mode)
	}
	return nil
}

// Summary is the outcome of a summarization job.
type Summary struct {
	Mode SummaryMode
	// Sentences holds extracted sentences in document order, or the
	// abstractive summaries.
	Sentences []string
	JobID     string
}

// Text joins the summary sentences.
func (s Summary) Text() string {
	return strings.Join(s.Sentences, " ")
}

// ErrJobTimeout is the cause of a failure when a job is still running after MaxPolls.
var ErrJobTimeout = errors.New("summarization job did not finish")

type jobTask struct {
	Kind       string         `json:"kind"`
	TaskName   string         `json:"taskName"`
	Parameters map[string]any `json:"parameters"`
}

type jobRequest struct {
	DisplayName   string        `json:"displayName"`
	AnalysisInput analysisInput `json:"analysisInput"`
	Tasks         []jobTask     `json:"tasks"`
}

type jobState struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Tasks struct {
		Items []struct {
			Kind    string          `json:"kind"`
			Status  string          `json:"status"`
			Results json.RawMessage `json:"results"`
		} `json:"items"`
	} `json:"tasks"`
}

func (j jobState) Validate() error {
	if j.Status == "" {
		return errors.New("missing job status")
	}
	return nil
}

type extractiveResults struct {
	Documents []struct {
		ID        string `json:"id"`
		Sentences []struct {
			Text      string  `json:"text"`
			RankScore float64 `json:"rankScore"`
			Offset    int     `json:"offset"`
		} `json:"sentences"`
	} `json:"documents"`
	Errors []DocumentError `json:"errors"`
}

type abstractiveResults struct {
	Documents []struct {
		ID        string `json:"id"`
		Summaries []struct {
			Text string `json:"text"`
		} `json:"summaries"`
	} `json:"documents"`
	Errors []DocumentError `json:"errors"`
}

// Summarize submits an analyze-text job and polls it until it finishes.
// Submission and each poll are separate operations.
func (s *Service) Summarize(ctx context.Context, text string, opts SummaryOptions) (Summary, error) {
	if err := opts.normalize(); err != nil {
		return Summary{}, domain.WrapFailure(domain.FailureInvalidInput, err, "summarize")
	}

	task := jobTask{TaskName: "summarize"}
	if opts.Mode == Extractive {
		task.Kind = "ExtractiveSummarization"
		task.Parameters = map[string]any{"sentenceCount": opts.SentenceCount, "sortBy": "Offset"}
	} else {
		task.Kind = "AbstractiveSummarization"
		task.Parameters = map[string]any{"summaryLength": opts.Length}
	}

	body := jobRequest{
		DisplayName:   "cogcall summarize",
		AnalysisInput: analysisInput{Documents: []document{s.document(domain.KindSummarize, text)}},
		Tasks:         []jobTask{task},
	}
	op := rpc.NewOperation(domain.KindSummarize, text, jobsPath, body)
	op.Decode = operationLocation

	result, err := s.client.Execute(ctx, op)
	if err != nil {
		return Summary{}, err
	}
	location := result.(string)

	state, err := s.poll(ctx, location)
	if err != nil {
		return Summary{}, err
	}
	return parseSummary(opts.Mode, state)
}

func operationLocation(resp rpc.Response) (any, error) {
	loc := resp.Header.Get("Operation-Location")
	if loc == "" {
		return nil, errors.New("missing Operation-Location header")
	}
	return loc, nil
}

func (s *Service) poll(ctx context.Context, location string) (jobState, error) {
	u, err := url.Parse(location)
	if err != nil {
		return jobState{}, domain.WrapFailure(domain.FailureUnknown, err, "parse job location")
	}

	for i := 0; i < s.MaxPolls; i++ {
		if i > 0 {
			if err := rpc.Wait(ctx, s.PollInterval); err != nil {
				return jobState{}, domain.CanceledFailure(err)
			}
		}

		op := rpc.NewGetOperation(domain.KindJobStatus, u.Path, u.Query())
		op.Target = domain.KindSummarize.Service()

		state, err := rpc.Do[jobState](ctx, s.client, op)
		if err != nil {
			return jobState{}, err
		}

		switch state.Status {
		case "succeeded", "partiallyCompleted":
			return state, nil
		case "failed", "cancelled":
			return jobState{}, jobFailure(state)
		}
	}

	f := domain.WrapFailure(domain.FailureUnknown, ErrJobTimeout, "after %d polls", s.MaxPolls)
	return jobState{}, f
}

func jobFailure(state jobState) *domain.Failure {
	if len(state.Errors) == 0 {
		return domain.NewFailure(domain.FailureUnknown, fmt.Sprintf("job %s %s", state.JobID, state.Status))
	}
	e := state.Errors[0]
	kind := domain.FailureUnknown
	if e.Code == "InvalidArgument" || e.Code == "InvalidRequest" {
		kind = domain.FailureInvalidInput
	}
	return domain.NewFailure(kind, fmt.Sprintf("job %s: %s: %s", state.JobID, e.Code, e.Message))
}

func parseSummary(mode SummaryMode, state jobState) (Summary, error) {
	if len(state.Tasks.Items) == 0 {
		return Summary{}, domain.NewFailure(domain.FailureUnknown, "job finished without task results")
	}
	raw := state.Tasks.Items[0].Results
	out := Summary{Mode: mode, JobID: state.JobID}

	if mode == Extractive {
		var res extractiveResults
		if err := json.Unmarshal(raw, &res); err != nil {
			return Summary{}, domain.WrapFailure(domain.FailureUnknown, err, "parse extractive results")
		}
		if len(res.Errors) > 0 {
			return Summary{}, documentFailure(res.Errors[0])
		}
		if len(res.Documents) == 0 {
			return Summary{}, domain.NewFailure(domain.FailureUnknown, "no summarized documents")
		}
		sentences := res.Documents[0].Sentences
		sort.SliceStable(sentences, func(i, j int) bool { return sentences[i].Offset < sentences[j].Offset })
		for _, st := range sentences {
			out.Sentences = append(out.Sentences, st.Text)
		}
		return out, nil
	}

	var res abstractiveResults
	if err := json.Unmarshal(raw, &res); err != nil {
		return Summary{}, domain.WrapFailure(domain.FailureUnknown, err, "parse abstractive results")
	}
	if len(res.Errors) > 0 {
		return Summary{}, documentFailure(res.Errors[0])
	}
	if len(res.Documents) == 0 {
		return Summary{}, domain.NewFailure(domain.FailureUnknown, "no summarized documents")
	}
	for _, sm := range res.Documents[0].Summaries {
		out.Sentences = append(out.Sentences, sm.Text)
	}
	return out, nil
}
