package core

// ImportResult is the outcome the chain reports for an imported block.
type ImportResult int

// Import outcomes.
const (
	// ImportedBest means the block was connected and is the new best
	// block.
	ImportedBest ImportResult = iota

	// ImportedNotBest means the block was connected to a side chain.
	ImportedNotBest

	// ImportExists means the chain already had the block.
	ImportExists

	// ImportNoParent means the block's parent is unknown.
	ImportNoParent

	// ImportInvalidBlock means the block failed consensus validation.
	ImportInvalidBlock
)

var importResultStrings = map[ImportResult]string{
	ImportedBest:       "IMPORTED_BEST",
	ImportedNotBest:    "IMPORTED_NOT_BEST",
	ImportExists:       "EXIST",
	ImportNoParent:     "NO_PARENT",
	ImportInvalidBlock: "INVALID_BLOCK",
}

// String returns a human readable name for the import result.
func (r ImportResult) String() string {
	if s, ok := importResultStrings[r]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsSuccessful reports whether the block was connected to the chain, on the
// best chain or not.
func (r ImportResult) IsSuccessful() bool {
	return r == ImportedBest || r == ImportedNotBest
}
