// Package errcode defines the error codes shared by the CLI, the HTTP API,
// and the commit engine. Errors are built with agilira/go-errors so the code
// travels inside the message as "[CODE]: text" and can be recovered at the
// presentation layer without type assertions across package boundaries.
package errcode

const (
	// NoSuchCommand: a token matched neither a literal child nor a tag.
	NoSuchCommand = "NOSUCH_COMMAND"

	// IncompleteCommand: the line stopped on a node that is not executable.
	IncompleteCommand = "INCOMPLETE_COMMAND"

	// Validation: a tag token was rejected by its validator.
	Validation = "VALIDATION_ERROR"

	// InvalidPath: a configuration path does not conform to the schema.
	InvalidPath = "INVALID_PATH"

	// NotFound: a get addressed a path absent from the tree.
	NotFound = "NOT_FOUND"

	// RenderFailure: a subsystem renderer failed or timed out during commit.
	RenderFailure = "RENDER_FAILURE"

	// PersistFailure: rendering succeeded but the running config could not
	// be written to disk. The in-memory running config is authoritative;
	// "save" retries the write.
	PersistFailure = "PERSIST_FAILURE"

	// ConfigLocked: another session holds the candidate configuration.
	ConfigLocked = "CONFIG_LOCKED"
)

// Code extracts the error code from a coded error. go-errors renders as
// "[CODE]: message"; wrapped errors keep the bracket somewhere in the chain,
// so scan for the first bracketed all-caps token.
func Code(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(s) && (s[j] == '_' || (s[j] >= 'A' && s[j] <= 'Z')) {
			j++
		}
		if j > i+1 && j < len(s) && s[j] == ']' {
			return s[i+1 : j]
		}
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}
