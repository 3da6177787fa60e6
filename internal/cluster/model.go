// Package cluster manages groups of near-duplicate questions sharing one
// canonical representative.
package cluster

import (
	"errors"
	"time"
)

// Common errors for cluster operations.
var (
	ErrNotFound      = errors.New("cluster not found")
	ErrNoLiveMembers = errors.New("cluster has no live members")
	ErrNotMember     = errors.New("question is not a member of the cluster")
)

// Cluster is a set of near-duplicate questions with one representative.
// The representative is always itself a member; aggregate counters are the
// sum of vote counters across all non-removed members.
type Cluster struct {
	ID               string    `json:"id"`
	ContestID        string    `json:"contest_id"`
	RepresentativeID string    `json:"representative_question_id"`
	MemberIDs        []string  `json:"member_question_ids"`
	AggUpvotes       int64     `json:"aggregate_upvotes"`
	AggDownvotes     int64     `json:"aggregate_downvotes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasMember reports whether the question id is a member of the cluster.
func (c *Cluster) HasMember(questionID string) bool {
	for _, id := range c.MemberIDs {
		if id == questionID {
			return true
		}
	}
	return false
}
