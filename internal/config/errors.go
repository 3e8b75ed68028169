package config

import "sort"

// Error is a single validation error, structured as {key, message}.
// Key is empty for document-level errors (e.g. "updates was not an
// object").
type Error struct {
	Key     string
	Message string
}

// FullMessage renders the error the way dump/test output expects:
// "'<key>' <message>", or just the message when Key is empty.
func (e Error) FullMessage() string {
	if e.Key == "" {
		return e.Message
	}
	return "'" + e.Key + "' " + e.Message
}

func (e Error) Error() string { return e.FullMessage() }

// SortErrors orders errors by their full message, for deterministic
// output across map-backed iteration.
func SortErrors(errs []Error) {
	sort.Slice(errs, func(i, j int) bool {
		return errs[i].FullMessage() < errs[j].FullMessage()
	})
}
