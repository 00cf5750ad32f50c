package speech

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Action is what a phrase asks the robot to do.
type Action string

const (
	ActionNone      Action = ""
	ActionExit      Action = "exit"
	ActionStop      Action = "stop"
	ActionMove      Action = "move"
	ActionTurn      Action = "turn"
	ActionHeading   Action = "heading"
	ActionFaceClass Action = "face_class"
)

// Command is an interpreted phrase.
type Command struct {
	Action Action
	Class  string  // ActionFaceClass
	Yaw    float64 // ActionHeading, radians
	Left   bool    // ActionTurn
	Text   string
}

var (
	headingRe = regexp.MustCompile(`\b(?:turn|rotate) to (-?\d+(?:\.\d+)?) ?(?:degrees?|°)`)
	classRe   = regexp.MustCompile(`\b(?:turn (?:to|towards?)|face|find|look at) (?:the |a |an )?([a-z][a-z ]*)$`)
	turnRe    = regexp.MustCompile(`\bturn (?:to the )?(left|right)\b`)
	moveRe    = regexp.MustCompile(`\b(?:move|forward|go)\b`)
	stopRe    = regexp.MustCompile(`\b(?:stop|halt|freeze)\b`)
)

// noise lists what Whisper tends to produce for silence.
var noise = []string{
	"thank you",
	"thanks for watching",
	"subscribe",
	"[music]",
	"[applause]",
	"...",
}

// IsNoise reports whether text looks like a transcription of silence.
func IsNoise(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(lower) < 2 {
		return true
	}
	for _, pattern := range noise {
		if strings.Contains(lower, pattern) && len(lower) < 20 {
			return true
		}
	}
	return false
}

// Interpret maps a transcript to a command. "exit" alone ends the loop;
// stop wins over everything else that might appear in the same phrase.
func Interpret(text string) Command {
	t := normalize(text)
	cmd := Command{Text: text}

	switch {
	case t == "exit":
		cmd.Action = ActionExit
	case stopRe.MatchString(t):
		cmd.Action = ActionStop
	case headingRe.MatchString(t):
		deg, _ := strconv.ParseFloat(headingRe.FindStringSubmatch(t)[1], 64)
		cmd.Action, cmd.Yaw = ActionHeading, tracking.NormalizeAngle(tracking.Radians(deg))
	case turnRe.MatchString(t):
		cmd.Action, cmd.Left = ActionTurn, turnRe.FindStringSubmatch(t)[1] == "left"
	case classRe.MatchString(t):
		cmd.Action, cmd.Class = ActionFaceClass, strings.TrimSpace(classRe.FindStringSubmatch(t)[1])
	case moveRe.MatchString(t):
		cmd.Action = ActionMove
	}
	return cmd
}

// normalize lowercases and drops trailing punctuation Whisper adds.
func normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, ".!?,")
	return strings.Join(strings.Fields(t), " ")
}
