// Package model contains domain records passed between layers.
package model

import "time"

// Partition names one half of the fixed master-data split.
type Partition string

// Master-data partitions. The assignment is decided once at load time.
const (
	PartitionPublic  Partition = "public"
	PartitionPrivate Partition = "private"
)

// MasterRecord is one ground-truth row of the master dataset.
type MasterRecord struct {
	ID        int64     // unique record identifier
	Label     int       // true binary label, 0 or 1
	Partition Partition // public or private
}

// Submission is a scored student upload. Rows are never deleted and never
// mutated after insert, except for the IsSelected flag.
type Submission struct {
	ID                 int64
	UserID             int64
	UserEmail          string
	UserFullName       string
	Name               string
	Timestamp          time.Time
	FileChecksum       string // sha256 hex of the raw uploaded bytes
	FilePath           string
	PublicScore        float64
	PrivateScore       float64
	TP                 int // private-partition confusion counts
	TN                 int
	FP                 int
	FN                 int
	PositivesPredicted int
	ThresholdCategory  string
	IsSelected         bool // exclusive per user
}

// Badge is an earned achievement. (UserID, Name) is unique.
type Badge struct {
	UserID   int64
	Name     string
	EarnedAt time.Time
}

// FakeSubmission is an instructor-injected leaderboard entry with no file
// behind it. It only participates in the public leaderboard view.
type FakeSubmission struct {
	Name              string
	PublicScore       float64
	ThresholdCategory string
}

// InboundMessage is the transport-normalized command record delivered to the
// command handlers.
type InboundMessage struct {
	SenderID       int64
	SenderEmail    string
	SenderFullName string
	Content        string
}

// DuplicateGroup reports one file checksum shared by more than one user.
type DuplicateGroup struct {
	Checksum        string
	Emails          []string // distinct participating user emails
	SubmissionNames []string // all submission names in the group
}

// LeaderboardRow is one user's line in the full (private) leaderboard.
type LeaderboardRow struct {
	UserID           int64
	UserFullName     string
	FinalScore       float64 // selected private score, else best private score
	TotalSubmissions int
	BestPublicScore  float64
	BestPrivateScore float64
}

// PublicLeaderboardRow is one line of the merged public leaderboard.
type PublicLeaderboardRow struct {
	Name        string  `json:"name"`
	PublicScore float64 `json:"public_score"`
	Category    string  `json:"category"`
}
