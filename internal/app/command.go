package app

import (
	"strconv"
	"strings"
)

// Kind identifies a chat command.
type Kind int

// Recognized command kinds.
const (
	KindUnknown Kind = iota
	KindHelp
	KindSubmit
	KindBadges
	KindListSubmits
	KindSelect
	KindDuplicates
	KindLeaderboardFull
	KindLeaderboardPublic
	KindFakeSubmit
)

// String returns the metrics label for the kind.
func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindSubmit:
		return "submit"
	case KindBadges:
		return "badges"
	case KindListSubmits:
		return "list_submits"
	case KindSelect:
		return "select"
	case KindDuplicates:
		return "duplicates"
	case KindLeaderboardFull:
		return "leaderboard_full"
	case KindLeaderboardPublic:
		return "leaderboard_public"
	case KindFakeSubmit:
		return "fake_submit"
	default:
		return "unknown"
	}
}

// FakeAction is the sub-action of a fake_submit command.
type FakeAction int

// fake_submit sub-actions.
const (
	FakeNone FakeAction = iota
	FakeAdd
	FakeRemove
)

// Command is a parsed chat message. When the command keyword matched but its
// arguments did not, ArgErr carries the usage message to send back; handlers
// must check it before touching the other fields.
type Command struct {
	Kind         Kind
	Name         string // submit: submission name, fake_submit: entry name
	SubmissionID int64  // select
	Score        float64 // fake_submit add
	FakeAction   FakeAction
	ArgErr       string
}

// Usage and argument error messages.
const (
	usageSubmit     = "❌ Wrong format. Usage: `submit <name>` and attach the CSV file"
	usageSelect     = "❌ Wrong format. Usage: `select <submission_id>`"
	usageFakeSubmit = "❌ Wrong format. Usage: `fake_submit add <name> <public_score>` or `fake_submit remove <name>`"
	usageFakeAdd    = "❌ Wrong format. Usage: `fake_submit add <name> <public_score>`"
	usageFakeRemove = "❌ Wrong format. Usage: `fake_submit remove <name>`"

	errSelectNotNumber = "❌ The submission id must be a number"
	errScoreNotNumber  = "❌ The public score must be a number"
	errFakeAction      = "❌ Invalid action. Use 'add' or 'remove'"
)

// ParseCommand classifies a raw message body. Keyword matching is
// case-insensitive; argument values keep their original casing.
func ParseCommand(content string) Command {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "help":
		return Command{Kind: KindHelp}
	case lower == "badges":
		return Command{Kind: KindBadges}
	case lower == "list submits":
		return Command{Kind: KindListSubmits}
	case lower == "duplicates":
		return Command{Kind: KindDuplicates}
	case lower == "leaderboard full":
		return Command{Kind: KindLeaderboardFull}
	case lower == "leaderboard public":
		return Command{Kind: KindLeaderboardPublic}
	case strings.HasPrefix(lower, "submit "):
		return parseSubmit(trimmed)
	case strings.HasPrefix(lower, "select "):
		return parseSelect(trimmed)
	case strings.HasPrefix(lower, "fake_submit "):
		return parseFakeSubmit(trimmed)
	default:
		return Command{Kind: KindUnknown}
	}
}

// parseSubmit takes the submission name from the first line after the
// keyword; attachment markdown on following lines is not part of the name.
func parseSubmit(trimmed string) Command {
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) < 2 {
		return Command{Kind: KindSubmit, ArgErr: usageSubmit}
	}
	firstLine, _, _ := strings.Cut(parts[1], "\n")
	name := strings.TrimSpace(firstLine)
	if name == "" {
		return Command{Kind: KindSubmit, ArgErr: usageSubmit}
	}
	return Command{Kind: KindSubmit, Name: name}
}

func parseSelect(trimmed string) Command {
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return Command{Kind: KindSelect, ArgErr: usageSelect}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Command{Kind: KindSelect, ArgErr: errSelectNotNumber}
	}
	return Command{Kind: KindSelect, SubmissionID: id}
}

func parseFakeSubmit(trimmed string) Command {
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return Command{Kind: KindFakeSubmit, ArgErr: usageFakeSubmit}
	}

	switch strings.ToLower(fields[1]) {
	case "add":
		if len(fields) < 4 {
			return Command{Kind: KindFakeSubmit, ArgErr: usageFakeAdd}
		}
		score, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return Command{Kind: KindFakeSubmit, ArgErr: errScoreNotNumber}
		}
		return Command{Kind: KindFakeSubmit, FakeAction: FakeAdd, Name: fields[2], Score: score}
	case "remove":
		if len(fields) < 3 {
			return Command{Kind: KindFakeSubmit, ArgErr: usageFakeRemove}
		}
		return Command{Kind: KindFakeSubmit, FakeAction: FakeRemove, Name: fields[2]}
	default:
		return Command{Kind: KindFakeSubmit, ArgErr: errFakeAction}
	}
}
