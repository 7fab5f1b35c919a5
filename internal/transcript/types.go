package transcript

// ParsedMessage is one conversational turn extracted from a transcript.
// Empty string fields mean the value was absent in the source.
type ParsedMessage struct {
	Role        string
	Text        string
	Timestamp   string
	HasToolCall bool
}

// ParsedSession is the normalized form of one transcript file. It is a
// transient value: persistence is the store's concern.
type ParsedSession struct {
	CreatedAt     string
	LastMessageAt string
	Agent         string
	Workspace     string
	Title         string
	MessageCount  int
	Snippet       string
	// Content is the full searchable text: role-tagged lines joined by
	// newlines, in turn order.
	Content  string
	Messages []ParsedMessage
	// Malformed counts records that were skipped because they were not
	// valid structured data for the declared format.
	Malformed int
}

// ToolCall is a tool invocation found inside a message's content blocks.
type ToolCall struct {
	Name      string
	Arguments any
}
