// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Competition semantics (gain matrix, thresholds, deadline) come only from
//   explicit configuration; the service refuses to start without them.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"strings"
	"time"
)

// Deadline layouts accepted in configuration, tried in order.
var deadlineLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

// Zulip holds bot credentials for the chat transport.
type Zulip struct {
	// Email is the bot account address.
	Email string `koanf:"email"`

	// APIKey authenticates API calls together with Email.
	APIKey string `koanf:"api_key"`

	// Site is the realm base URL, e.g. https://chat.example.com.
	Site string `koanf:"site"`
}

// Database configures the SQLite store.
type Database struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`
}

// MasterData locates the ground-truth dataset.
type MasterData struct {
	// Path is the master CSV with id, label and partition columns.
	Path string `koanf:"path"`
}

// Submissions configures raw file storage.
type Submissions struct {
	// Path is the directory submitted files are stored under.
	Path string `koanf:"path"`
}

// GainMatrix holds the per-outcome gains used to score a submission.
type GainMatrix struct {
	TP float64 `koanf:"tp"`
	TN float64 `koanf:"tn"`
	FP float64 `koanf:"fp"`
	FN float64 `koanf:"fn"`
}

// Threshold is one public-score band with its feedback message.
type Threshold struct {
	MinScore float64 `koanf:"min_score"`
	Category string  `koanf:"category"`
	Message  string  `koanf:"message"`
	Emoji    string  `koanf:"emoji"`
}

// BadgeMeta is the display metadata for one badge.
type BadgeMeta struct {
	Name  string `koanf:"name"`
	Emoji string `koanf:"emoji"`
}

// Competition describes the running competition.
type Competition struct {
	// Name is shown in help and report headers.
	Name string `koanf:"name"`

	// Description is shown in help output.
	Description string `koanf:"description"`

	// Deadline is the submission cutoff, RFC3339 or 2006-01-02T15:04:05.
	Deadline string `koanf:"deadline"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogDir, when set, additionally writes logs to a dated file under it.
	LogDir string `koanf:"log_dir"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory inbound message queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of command workers.
	WorkerCount int `koanf:"worker_count"`

	// Zulip holds chat transport credentials.
	Zulip Zulip `koanf:"zulip"`

	// Database configures the SQLite store.
	Database Database `koanf:"database"`

	// Teachers lists instructor emails; everyone else is a student.
	Teachers []string `koanf:"teachers"`

	// MasterData locates the ground-truth dataset.
	MasterData MasterData `koanf:"master_data"`

	// Submissions configures raw file storage.
	Submissions Submissions `koanf:"submissions"`

	// GainMatrix holds the scoring gains. No default: must be configured.
	GainMatrix GainMatrix `koanf:"gain_matrix"`

	// GainThresholds are the public-score bands, any order. No default.
	GainThresholds []Threshold `koanf:"gain_thresholds"`

	// Badges maps badge keys to display metadata.
	Badges map[string]BadgeMeta `koanf:"badges"`

	// Competition describes the running competition.
	Competition Competition `koanf:"competition"`
}

// New creates a Config with defaults. Competition semantics are left empty on
// purpose; Load validates that configuration supplies them.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":9080",
		QueueSize:   1024,
		WorkerCount: 4,
		Database:    Database{Path: "oraculus.db"},
		Submissions: Submissions{Path: "./submissions"},
		Badges: map[string]BadgeMeta{
			"first_submission":      {Name: "First Submission", Emoji: "🎯"},
			"first_model_selection": {Name: "First Model Selection", Emoji: "✅"},
			"submissions_10":        {Name: "10 Submissions", Emoji: "🔟"},
			"submissions_50":        {Name: "50 Submissions", Emoji: "🏃"},
			"submissions_100":       {Name: "100 Submissions", Emoji: "💯"},
			"top_5_public":          {Name: "Top 5 Public", Emoji: "🏆"},
			"high_threshold_first":  {Name: "High Flyer", Emoji: "🚀"},
		},
	}
}

// TeacherSet returns the instructor emails as a lowercase lookup set.
func (c *Config) TeacherSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Teachers))
	for _, t := range c.Teachers {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

// DeadlineTime parses the configured deadline.
func (c *Config) DeadlineTime() (time.Time, error) {
	var lastErr error
	for _, layout := range deadlineLayouts {
		t, err := time.Parse(layout, c.Competition.Deadline)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, invalidf("competition.deadline: %v", lastErr)
}
