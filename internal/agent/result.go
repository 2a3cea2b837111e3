package agent

// ResultKind tags an ExecutionResult.
type ResultKind int

const (
	// DirectlySent means the executor already delivered everything; send nothing more.
	DirectlySent ResultKind = iota
	// ReplyText asks the dispatcher to send Text exactly once.
	ReplyText
)

func (k ResultKind) String() string {
	if k == ReplyText {
		return "reply_text"
	}
	return "directly_sent"
}

// ExecutionResult is the outcome of executing one intent.
type ExecutionResult struct {
	Kind ResultKind
	Text string // reply body for ReplyText
	Note string // log note for DirectlySent
}

func Sent(note string) ExecutionResult  { return ExecutionResult{Kind: DirectlySent, Note: note} }
func Reply(text string) ExecutionResult { return ExecutionResult{Kind: ReplyText, Text: text} }
