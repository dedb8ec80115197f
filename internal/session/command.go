package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one parsed prompt. The concrete types below are the only
// implementations.
type Command interface {
	Kind() string
}

type (
	Exit  struct{}
	Clear struct{}
	Undo  struct{}
	// Save snapshots the active conversation. An empty Name means the
	// conversation's own name.
	Save struct{ Name string }
	Load struct{ Name string }
	// SwitchConversation activates (or starts) the named persona.
	SwitchConversation struct{ Name string }
	// Chat sends Text to the completion backend, optionally with a one-off
	// temperature and an image attachment.
	Chat struct {
		Text        string
		Temperature *float64
		Image       *ImageRef
	}
	Empty   struct{}
	Invalid struct{ Reason string }
)

// ImageRef points at an image attachment: either a file under the images
// directory or a URL passed through as is.
type ImageRef struct {
	File string
	URL  string
}

func (Exit) Kind() string               { return "exit" }
func (Clear) Kind() string              { return "clear" }
func (Undo) Kind() string               { return "undo" }
func (Save) Kind() string               { return "save" }
func (Load) Kind() string               { return "load" }
func (SwitchConversation) Kind() string { return "switch" }
func (Chat) Kind() string               { return "chat" }
func (Empty) Kind() string              { return "empty" }
func (Invalid) Kind() string            { return "invalid" }

// ParseCommand turns a trimmed prompt line into a Command. A leading
// "temp: <float>" applies to the chat that follows it.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)

	var temperature *float64
	if rest, ok := strings.CutPrefix(line, "temp: "); ok {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return Invalid{Reason: "temp: needs a value"}
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Invalid{Reason: fmt.Sprintf("temp: invalid value %q", fields[0])}
		}
		temperature = &v
		line = strings.Join(fields[1:], " ")
	}

	if rest, ok := strings.CutPrefix(line+" ", "talk to "); ok {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return Invalid{Reason: "talk to: needs a name"}
		}
		return SwitchConversation{Name: fields[0]}
	}

	switch strings.ToLower(line) {
	case "":
		return Empty{}
	case "exit":
		return Exit{}
	case "clear":
		return Clear{}
	case "undo":
		return Undo{}
	}

	if cmd, ok := parseSnapshot(line); ok {
		return cmd
	}

	if strings.HasPrefix(line, "image:") || strings.HasPrefix(line, "image_url:") {
		return parseImage(line, temperature)
	}
	return Chat{Text: line, Temperature: temperature}
}

func parseSnapshot(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, false
	}
	var name string
	if len(fields) == 2 {
		name = fields[1]
	}
	switch fields[0] {
	case "save":
		return Save{Name: name}, true
	case "load":
		return Load{Name: name}, true
	}
	return nil, false
}

func parseImage(line string, temperature *float64) Command {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Invalid{Reason: "image commands need a target"}
	}
	text := strings.Join(fields[2:], " ")
	switch fields[0] {
	case "image:":
		return Chat{Text: text, Temperature: temperature, Image: &ImageRef{File: fields[1]}}
	case "image_url:":
		return Chat{Text: text, Temperature: temperature, Image: &ImageRef{URL: fields[1]}}
	}
	return Invalid{Reason: "invalid image command, use 'image: <file> <text>' or 'image_url: <url> <text>'"}
}
