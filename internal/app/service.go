// Package app wires the domain together: it parses chat commands, enforces
// the student/teacher split, and formats markdown replies.
package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/okian/oraculus/internal/adapters/repository"
	"github.com/okian/oraculus/internal/adapters/storage"
	"github.com/okian/oraculus/internal/adapters/zulip"
	"github.com/okian/oraculus/internal/domain/badges"
	"github.com/okian/oraculus/internal/domain/dupes"
	"github.com/okian/oraculus/internal/domain/masterdata"
	"github.com/okian/oraculus/internal/domain/model"
	"github.com/okian/oraculus/internal/domain/scoring"
	"github.com/okian/oraculus/internal/domain/threshold"
	"github.com/okian/oraculus/pkg/logger"
	"github.com/okian/oraculus/pkg/metrics"
)

// Reply fragments shared across handlers.
const (
	replyInternalError   = "❌ Internal error. Please try again later."
	replyDeadlinePassed  = "❌ The submission deadline has passed"
	replyAttachCSV       = "❌ You must attach a CSV file. Use the format: `submit <name>` and attach the CSV file."
	replyNotCSV          = "❌ The file must be a CSV"
	replyOneColumn       = "❌ The CSV must have exactly 1 column with the ids predicted as positive"
	replyEmptyFile       = "❌ Error reading the CSV file: the file is empty"
	replyBadIDValue      = "❌ Error reading the CSV file: ids must be integers"
	replySelectNotFound  = "❌ Submission not found or not yours"
	replyNoBadges        = "🏆 You have no badges yet. Keep submitting models to earn them!"
	replyNoSubmissions   = "📋 You have no recorded submissions"
	replyNoDuplicates    = "✅ No duplicate submissions found"
	replyEmptyBoard      = "📊 There are no submissions in the leaderboard"
	replyEmptyPublic     = "📊 There are no submissions in the public leaderboard"
	replyFakeDuplicate   = "❌ A fake submission with that name already exists"
	replyFakeNotFound    = "❌ No fake submission found with that name"
)

// Display formats.
const (
	badgeDateLayout  = "02/01/2006"
	submitTimeLayout = "2006-01-02 15:04:05"
	fallbackEmoji    = "🏅"
)

// BadgeDisplay is the presentation metadata for one badge key.
type BadgeDisplay struct {
	Name  string
	Emoji string
}

// Competition carries the competition metadata shown to users.
type Competition struct {
	Name        string
	Description string
	Deadline    time.Time
}

// FileResolver extracts and downloads the CSV attachment of a message.
type FileResolver interface {
	ResolveAttachment(ctx context.Context, content string) (string, []byte, error)
}

// Deps are the collaborators a Service needs. All fields are required.
type Deps struct {
	Store      repository.Store
	Dataset    *masterdata.Dataset
	Scorer     *scoring.Engine
	Classifier *threshold.Classifier
	Badges     *badges.Engine
	Files      *storage.FileStore
	Resolver   FileResolver

	Teachers    map[string]struct{} // lowercase instructor emails
	Competition Competition
	BadgeMeta   map[string]BadgeDisplay
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock overrides the time source used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service handles inbound chat messages for the competition.
type Service struct {
	store      repository.Store
	dataset    *masterdata.Dataset
	scorer     *scoring.Engine
	classifier *threshold.Classifier
	badges     *badges.Engine
	files      *storage.FileStore
	resolver   FileResolver

	teachers    map[string]struct{}
	competition Competition
	badgeMeta   map[string]BadgeDisplay

	now    func() time.Time
	logger logger.Logger
}

// NewService creates a Service from its dependencies.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		store:       deps.Store,
		dataset:     deps.Dataset,
		scorer:      deps.Scorer,
		classifier:  deps.Classifier,
		badges:      deps.Badges,
		files:       deps.Files,
		resolver:    deps.Resolver,
		teachers:    deps.Teachers,
		competition: deps.Competition,
		badgeMeta:   deps.BadgeMeta,
		now:         time.Now,
		logger:      logger.Get().Named("app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsTeacher reports whether the email belongs to a configured instructor.
func (s *Service) IsTeacher(email string) bool {
	_, ok := s.teachers[strings.ToLower(email)]
	return ok
}

// Handle routes one inbound message and returns the reply body. A command
// sent by the wrong role is answered with that role's help text, exactly like
// an unknown command.
func (s *Service) Handle(ctx context.Context, msg model.InboundMessage) string {
	cmd := ParseCommand(msg.Content)
	isTeacher := s.IsTeacher(msg.SenderEmail)

	s.logger.Info(ctx, "command received",
		logger.String("sender", msg.SenderEmail),
		logger.String("command", cmd.Kind.String()),
	)

	var reply string
	switch {
	case cmd.Kind == KindHelp:
		reply = s.helpText(isTeacher)
	case cmd.Kind == KindSubmit:
		reply = s.handleSubmit(ctx, msg, cmd, isTeacher)
	case cmd.Kind == KindBadges && !isTeacher:
		reply = s.handleBadges(ctx, msg.SenderID)
	case cmd.Kind == KindListSubmits && !isTeacher:
		reply = s.handleListSubmits(ctx, msg.SenderID)
	case cmd.Kind == KindSelect && !isTeacher:
		reply = s.handleSelect(ctx, msg.SenderID, cmd)
	case cmd.Kind == KindDuplicates && isTeacher:
		reply = s.handleDuplicates(ctx)
	case cmd.Kind == KindLeaderboardFull && isTeacher:
		reply = s.handleLeaderboardFull(ctx)
	case cmd.Kind == KindLeaderboardPublic && isTeacher:
		reply = s.handleLeaderboardPublic(ctx)
	case cmd.Kind == KindFakeSubmit && isTeacher:
		reply = s.handleFakeSubmit(ctx, cmd)
	default:
		reply = s.helpText(isTeacher)
	}

	status := "ok"
	if strings.HasPrefix(reply, "❌") {
		status = "error"
	}
	metrics.RecordCommand(cmd.Kind.String(), status)
	return reply
}

// PublicLeaderboard exposes the merged public standing for the HTTP surface.
func (s *Service) PublicLeaderboard(ctx context.Context) ([]model.PublicLeaderboardRow, error) {
	return s.store.LeaderboardPublic(ctx)
}

func (s *Service) handleSubmit(ctx context.Context, msg model.InboundMessage, cmd Command, isTeacher bool) string {
	if cmd.ArgErr != "" {
		return cmd.ArgErr
	}

	// Students stop scoring at the deadline; instructors keep probing.
	if !isTeacher && s.now().After(s.competition.Deadline) {
		s.logger.Warn(ctx, "submission past deadline", logger.String("sender", msg.SenderEmail))
		return replyDeadlinePassed
	}

	filename, content, err := s.resolver.ResolveAttachment(ctx, msg.Content)
	if err != nil {
		if errors.Is(err, zulip.ErrNoAttachment) {
			return replyAttachCSV
		}
		s.logger.Error(ctx, "attachment download failed", logger.Error(err))
		return replyInternalError
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return replyNotCSV
	}

	checksum := dupes.Checksum(content)

	filePath, err := s.files.Save(msg.SenderID, isTeacher, cmd.Name, filename, content)
	if err != nil {
		s.logger.Error(ctx, "storing submission file failed", logger.Error(err))
		return replyInternalError
	}
	s.logger.Info(ctx, "submission file stored",
		logger.String("path", filePath),
		logger.String("checksum", checksum[:16]),
	)

	predicted, parseReply := parsePredictedIDs(content)
	if parseReply != "" {
		return parseReply
	}

	invalid := 0
	for id := range predicted {
		if !s.dataset.Contains(id) {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Sprintf("❌ Invalid ids found: %d ids do not exist in the dataset", invalid)
	}

	start := s.now()
	public, private, err := s.scorer.ScoreBoth(ctx, predicted)
	if err != nil {
		s.logger.Error(ctx, "scoring failed", logger.Error(err))
		return replyInternalError
	}
	metrics.RecordSubmissionScored()
	metrics.ObserveScoringDuration(float64(time.Since(start).Milliseconds()))

	category := s.classifier.Classify(public.Score)
	positives := len(predicted)

	s.logger.Info(ctx, "submission scored",
		logger.String("name", cmd.Name),
		logger.Float64("public", public.Score),
		logger.Float64("private", private.Score),
		logger.String("category", category),
	)

	if isTeacher {
		return teacherReport(cmd.Name, public, private, category, positives)
	}

	sub := &model.Submission{
		UserID:             msg.SenderID,
		UserEmail:          msg.SenderEmail,
		UserFullName:       msg.SenderFullName,
		Name:               cmd.Name,
		Timestamp:          s.now(),
		FileChecksum:       checksum,
		FilePath:           filePath,
		PublicScore:        public.Score,
		PrivateScore:       private.Score,
		TP:                 private.TP,
		TN:                 private.TN,
		FP:                 private.FP,
		FN:                 private.FN,
		PositivesPredicted: positives,
		ThresholdCategory:  category,
		IsSelected:         false,
	}
	id, err := s.store.RecordSubmission(ctx, sub)
	if err != nil {
		s.logger.Error(ctx, "persisting submission failed", logger.Error(err))
		return replyInternalError
	}

	count, err := s.store.CountByUser(ctx, msg.SenderID)
	if err != nil {
		s.logger.Error(ctx, "counting submissions failed", logger.Error(err))
		return replyInternalError
	}

	newBadges, err := s.badges.Evaluate(ctx, msg.SenderID, int(count), public.Score, false)
	if err != nil {
		s.logger.Error(ctx, "badge evaluation failed", logger.Error(err))
		return replyInternalError
	}
	for _, b := range newBadges {
		metrics.RecordBadgeAwarded(b)
	}

	return s.studentReport(id, public.Score, positives, category, newBadges)
}

func (s *Service) studentReport(id int64, publicScore float64, positives int, category string, newBadges []string) string {
	level, _ := s.classifier.Level(category)

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 **%s** %s\n\n", level.Message, level.Emoji)
	fmt.Fprintf(&b, "🆔 **Submission ID:** %d\n", id)
	fmt.Fprintf(&b, "📊 **Public Score:** %.4f\n", publicScore)
	fmt.Fprintf(&b, "📈 **Positives Predicted:** %d\n", positives)

	if len(newBadges) > 0 {
		b.WriteString("\n🏆 **New Badges:**\n")
		for _, name := range newBadges {
			display := s.displayBadge(name)
			fmt.Fprintf(&b, "%s %s\n", display.Emoji, display.Name)
		}
	}
	return b.String()
}

func teacherReport(name string, public, private scoring.Result, category string, positives int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Results for %s**\n\n", name)
	fmt.Fprintf(&b, "📊 **Public:** %.4f\n", public.Score)
	fmt.Fprintf(&b, "🔒 **Private:** %.4f\n", private.Score)
	fmt.Fprintf(&b, "🎯 **Category:** %s\n", category)
	fmt.Fprintf(&b, "📈 **Positives predicted:** %d\n", positives)
	fmt.Fprintf(&b, "🔢 **Private confusion matrix:** TP=%d, TN=%d, FP=%d, FN=%d\n",
		private.TP, private.TN, private.FP, private.FN)
	return b.String()
}

func (s *Service) handleSelect(ctx context.Context, userID int64, cmd Command) string {
	if cmd.ArgErr != "" {
		return cmd.ArgErr
	}

	if err := s.store.Select(ctx, userID, cmd.SubmissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return replySelectNotFound
		}
		s.logger.Error(ctx, "selecting submission failed", logger.Error(err))
		return replyInternalError
	}

	has, err := s.store.HasBadge(ctx, userID, badges.FirstModelSelection)
	if err != nil {
		s.logger.Error(ctx, "badge lookup failed", logger.Error(err))
		return replyInternalError
	}
	if !has {
		newBadges, err := s.badges.Evaluate(ctx, userID, 0, 0, true)
		if err != nil {
			s.logger.Error(ctx, "badge evaluation failed", logger.Error(err))
			return replyInternalError
		}
		for _, b := range newBadges {
			metrics.RecordBadgeAwarded(b)
		}
		return fmt.Sprintf("✅ Model %d selected\n🏆 Badge unlocked: First Model Selection!", cmd.SubmissionID)
	}
	return fmt.Sprintf("✅ Model %d selected for the leaderboard", cmd.SubmissionID)
}

func (s *Service) handleBadges(ctx context.Context, userID int64) string {
	earned, err := s.store.ListBadges(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing badges failed", logger.Error(err))
		return replyInternalError
	}
	if len(earned) == 0 {
		return replyNoBadges
	}

	var b strings.Builder
	b.WriteString("🏆 **Your Badges:**\n\n")
	for _, badge := range earned {
		display := s.displayBadge(badge.Name)
		fmt.Fprintf(&b, "%s **%s** - %s\n", display.Emoji, display.Name, badge.EarnedAt.Format(badgeDateLayout))
	}
	return b.String()
}

func (s *Service) handleListSubmits(ctx context.Context, userID int64) string {
	subs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing submissions failed", logger.Error(err))
		return replyInternalError
	}
	if len(subs) == 0 {
		return replyNoSubmissions
	}

	var b strings.Builder
	b.WriteString("📋 **Your Submissions:**\n\n")
	for _, sub := range subs {
		mark := ""
		if sub.IsSelected {
			mark = "⭐"
		}
		fmt.Fprintf(&b, "`%d` - **%s** %s\n", sub.ID, sub.Name, mark)
		fmt.Fprintf(&b, "   📅 %s | 🎯 %s\n\n", sub.Timestamp.Format(submitTimeLayout), sub.ThresholdCategory)
	}
	return b.String()
}

func (s *Service) handleDuplicates(ctx context.Context) string {
	groups, err := s.store.FindDuplicates(ctx)
	if err != nil {
		s.logger.Error(ctx, "duplicate scan failed", logger.Error(err))
		return replyInternalError
	}
	if len(groups) == 0 {
		return replyNoDuplicates
	}

	var b strings.Builder
	b.WriteString("🔍 **Duplicate Submissions:**\n\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "**Checksum:** `%s...`\n", g.Checksum[:16])
		fmt.Fprintf(&b, "**Users:** %s\n", strings.Join(g.Emails, ", "))
		fmt.Fprintf(&b, "**Submissions:** %s\n\n", strings.Join(g.SubmissionNames, ", "))
	}
	return b.String()
}

func (s *Service) handleLeaderboardFull(ctx context.Context) string {
	rows, err := s.store.LeaderboardFull(ctx)
	if err != nil {
		s.logger.Error(ctx, "full leaderboard failed", logger.Error(err))
		return replyInternalError
	}
	if len(rows) == 0 {
		return replyEmptyBoard
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 **Full Leaderboard - %s**\n\n", s.competition.Name)
	b.WriteString("| Pos | Name | Final Score | Submissions | Best Public | Best Private |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "| %d | %s | %.4f | %d | %.4f | %.4f |\n",
			i+1, row.UserFullName, row.FinalScore, row.TotalSubmissions,
			row.BestPublicScore, row.BestPrivateScore)
	}
	return b.String()
}

func (s *Service) handleLeaderboardPublic(ctx context.Context) string {
	rows, err := s.store.LeaderboardPublic(ctx)
	if err != nil {
		s.logger.Error(ctx, "public leaderboard failed", logger.Error(err))
		return replyInternalError
	}
	if len(rows) == 0 {
		return replyEmptyPublic
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌟 **Public Leaderboard - %s**\n\n", s.competition.Name)
	b.WriteString("| Pos | Name | Score | Category |\n")
	b.WriteString("|---|---|---|---|\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "| %d | %s | %.4f | %s |\n", i+1, row.Name, row.PublicScore, titleCase(row.Category))
	}
	return b.String()
}

func (s *Service) handleFakeSubmit(ctx context.Context, cmd Command) string {
	if cmd.ArgErr != "" {
		return cmd.ArgErr
	}

	switch cmd.FakeAction {
	case FakeAdd:
		if err := s.store.AddFake(ctx, cmd.Name, cmd.Score); err != nil {
			if errors.Is(err, repository.ErrDuplicateName) {
				return replyFakeDuplicate
			}
			s.logger.Error(ctx, "adding fake submission failed", logger.Error(err))
			return replyInternalError
		}
		return fmt.Sprintf("✅ Fake submission added: %s with score %.4f", cmd.Name, cmd.Score)
	case FakeRemove:
		if err := s.store.RemoveFake(ctx, cmd.Name); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return replyFakeNotFound
			}
			s.logger.Error(ctx, "removing fake submission failed", logger.Error(err))
			return replyInternalError
		}
		return fmt.Sprintf("✅ Fake submission '%s' removed", cmd.Name)
	default:
		return errFakeAction
	}
}

func (s *Service) helpText(isTeacher bool) string {
	header := fmt.Sprintf(
		"🤖 **OraculusBot - Help for %s**\n\n**Competition:** %s\n**Description:** %s\n**Deadline:** %s\n\n**Available commands:**\n",
		roleWord(isTeacher), s.competition.Name, s.competition.Description,
		s.competition.Deadline.Format(time.RFC3339),
	)

	if isTeacher {
		return header +
			"• `submit <name>` - Submit a model and see full results\n" +
			"• `duplicates` - List duplicate submissions\n" +
			"• `leaderboard full` - Full leaderboard with private scores\n" +
			"• `leaderboard public` - Public leaderboard\n" +
			"• `fake_submit add <name> <score>` - Add a fake leaderboard entry\n" +
			"• `fake_submit remove <name>` - Remove a fake entry\n" +
			"• `help` - Show this help"
	}
	return header +
		"• `submit <name>` - Submit a model (attach CSV)\n" +
		"• `badges` - See your earned badges\n" +
		"• `list submits` - List your submissions\n" +
		"• `select <id>` - Select a model for the leaderboard\n" +
		"• `help` - Show this help\n\n" +
		"**CSV format:** 1 column with the ids you predict as positive (no header)"
}

func roleWord(isTeacher bool) string {
	if isTeacher {
		return "Teachers"
	}
	return "Students"
}

func (s *Service) displayBadge(name string) BadgeDisplay {
	if meta, ok := s.badgeMeta[name]; ok {
		return meta
	}
	return BadgeDisplay{Name: name, Emoji: fallbackEmoji}
}

// parsePredictedIDs reads the single-column CSV of predicted-positive ids.
// The second return value is a ready-to-send reply when the file is
// malformed.
func parsePredictedIDs(content []byte) (map[int64]struct{}, string) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Sprintf("❌ Error reading the CSV file: %v", err)
	}
	if len(records) == 0 {
		return nil, replyEmptyFile
	}

	predicted := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if len(rec) != 1 {
			return nil, replyOneColumn
		}
		id, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, replyBadIDValue
		}
		predicted[id] = struct{}{}
	}
	return predicted, ""
}

// titleCase uppercases the first letter of each space-separated word, for the
// category column of the public leaderboard. Category names are operator
// input and may start with a non-ASCII rune.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
