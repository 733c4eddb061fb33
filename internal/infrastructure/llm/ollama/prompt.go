package ollama

import (
	"fmt"
	"strings"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

func buildAnswerPrompt(question string, passages []domain.RetrievedPassage) string {
	var contextBuilder strings.Builder
	for idx, passage := range passages {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] doc=%s score=%.3f\n%s\n\n",
			idx+1,
			passage.DocumentID,
			passage.Score,
			passage.Text,
		))
	}

	return fmt.Sprintf(`Answer user question only from context below.
If context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
