package collab

import "math/rand"

// SummaryComposer produces the human-readable close-out line for a
// completed meeting.
type SummaryComposer interface {
	ComposeSuccessSummary() (expression, statement string)
}

var successExpressions = []string{
	"Boom",
	"Huzzah",
	"Nailed it",
	"High five",
	"Victory lap",
}

var successStatements = []string{
	"Another meeting in the books",
	"The agenda never stood a chance",
	"That's how teams get it done",
	"Progress: captured and assigned",
	"See you at the next one",
}

// CopyComposer picks a summary line from fixed phrase tables. The random
// source is injected so the selection is reproducible in tests.
type CopyComposer struct {
	Rand *rand.Rand
}

func (c *CopyComposer) ComposeSuccessSummary() (string, string) {
	return successExpressions[c.Rand.Intn(len(successExpressions))],
		successStatements[c.Rand.Intn(len(successStatements))]
}
