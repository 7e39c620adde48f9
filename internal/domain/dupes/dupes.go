// Package dupes detects submissions carrying identical uploaded content.
//
// Content identity is the sha256 checksum of the raw uploaded bytes, computed
// before the file is stored so the checksum reflects exactly what was
// submitted.
package dupes

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/okian/oraculus/internal/domain/model"
)

// Checksum returns the lowercase hex sha256 digest of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Record is the minimal submission view needed for duplicate grouping.
type Record struct {
	UserID         int64
	UserEmail      string
	SubmissionName string
	Checksum       string
}

// Groups partitions records by checksum and keeps only groups spanning more
// than one distinct user. A user resubmitting their own file is not a
// cross-user duplicate. Group order follows first appearance; emails are
// distinct, submission names are reported in full.
func Groups(records []Record) []model.DuplicateGroup {
	byChecksum := map[string]*model.DuplicateGroup{}
	users := map[string]map[int64]struct{}{}
	var order []string

	for _, rec := range records {
		g, ok := byChecksum[rec.Checksum]
		if !ok {
			g = &model.DuplicateGroup{Checksum: rec.Checksum}
			byChecksum[rec.Checksum] = g
			users[rec.Checksum] = map[int64]struct{}{}
			order = append(order, rec.Checksum)
		}
		if _, seen := users[rec.Checksum][rec.UserID]; !seen {
			users[rec.Checksum][rec.UserID] = struct{}{}
			g.Emails = append(g.Emails, rec.UserEmail)
		}
		g.SubmissionNames = append(g.SubmissionNames, rec.SubmissionName)
	}

	var out []model.DuplicateGroup
	for _, checksum := range order {
		if len(users[checksum]) > 1 {
			out = append(out, *byChecksum[checksum])
		}
	}
	return out
}
