package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/guard"
	"github.com/raphaelgruber/studygen-go/internal/models"
)

const semanticSystemPrompt = `You are a strict content reviewer for study materials.
You receive source material and a generated study artifact. Check that:
- every question, term or node is answerable/groundable from the source material
- no facts are invented that the source material does not support
- answers marked as correct are actually correct according to the source material

Output format (one per line):
ISSUE|<short description of the problem>

If the artifact has no problems, output exactly:
OK`

// Semantic is the LLM-graded groundedness check: one model call comparing
// the draft artifact against the retrieval snapshot it must be grounded in.
type Semantic struct {
	g       *guard.Guard
	timeout time.Duration
}

// NewSemantic creates a semantic validator using the given guard and
// validation-phase timeout.
func NewSemantic(g *guard.Guard, timeout time.Duration) *Semantic {
	return &Semantic{g: g, timeout: timeout}
}

// Check grades the artifact against the snapshot. Returns a list of issue
// strings (empty = pass). The call goes through both safety wrappers, so
// timeout and budget errors propagate as guard sentinels.
func (s *Semantic) Check(ctx context.Context, jobID string, artifact *models.Artifact, snapshot models.RetrievalSnapshot) ([]string, error) {
	userPrompt := fmt.Sprintf(`Source material:
%s

Generated %s artifact:
%s

Review:`, snapshot.JoinedText(), artifact.Type, artifact.JSON())

	response, _, err := s.g.Complete(ctx, jobID, s.timeout, semanticSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return parseIssues(response), nil
}

// parseIssues extracts ISSUE| lines from the grader's response. Anything
// the model emits outside that format is ignored; a clean "OK" (or an empty
// response) yields no issues.
func parseIssues(response string) []string {
	var issues []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "ISSUE|"); ok {
			if desc := strings.TrimSpace(rest); desc != "" {
				issues = append(issues, desc)
			}
		}
	}
	return issues
}
