package terminal

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/hai/errors"
)

const inputPlaceholder = "{{input}}"

// Input is a message in two forms: the full text sent to the model and a
// short form shown to the user.
type Input struct {
	Full    string
	Display string
}

// ReadPipe reads piped stdin.
func ReadPipe(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read stdin")
	}
	return strings.TrimSpace(string(data)), nil
}

// ExpandFiles resolves -f arguments. Patterns may use ** and are expanded
// in order; a plain path is kept even when it does not exist so reading it
// reports the error.
func ExpandFiles(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			paths = append(paths, pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "invalid file pattern %s", pattern)
		}
		if len(matches) == 0 {
			return nil, errors.New("no files match %s", pattern)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// ProcessInput combines the message with piped text and files, then fills
// the result into the prompt template, if any.
func ProcessInput(message, template, pipe string, files []string) (Input, error) {
	fileText, err := mergeFiles(files)
	if err != nil {
		return Input{}, err
	}
	fileDisplay := mergeFilesForDisplay(files)

	external := joinNonEmpty(pipe, fileText)

	var externalDisplay string
	switch {
	case pipe != "" && fileDisplay != "":
		externalDisplay = shorten(pipe, 50) + " " + fileDisplay
	case pipe != "":
		externalDisplay = shorten(pipe, 100)
	default:
		externalDisplay = fileDisplay
	}

	in := Input{Full: message, Display: message}
	if external != "" {
		in.Full = fillTemplate(message, external)
		in.Display = fillTemplate(message, externalDisplay)
	}
	if template != "" {
		in.Full = fillTemplate(template, in.Full)
		in.Display = fillTemplate(template, in.Display)
	}
	return in, nil
}

// fillTemplate puts input in place of {{input}}, or after the template.
func fillTemplate(template, input string) string {
	switch {
	case input == "":
		return template
	case template == "":
		return input
	case strings.Contains(template, inputPlaceholder):
		return strings.Replace(template, inputPlaceholder, input, 1)
	}
	return template + "\n\n" + input
}

func mergeFiles(paths []string) (string, error) {
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read file: %s", path)
		}
		parts = append(parts, "=== "+filepath.Base(path)+" ===\n"+string(data))
	}
	return strings.Join(parts, "\n"), nil
}

func mergeFilesForDisplay(paths []string) string {
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		parts = append(parts, "[file: "+filepath.Base(path)+"]")
	}
	return strings.Join(parts, " ")
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
