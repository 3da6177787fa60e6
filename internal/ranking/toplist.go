package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/opencivics/hustings/internal/question"
)

// TopEntry is one slot in a contest's top list: an approved cluster
// representative together with its cluster's aggregate counters.
type TopEntry struct {
	Question     *question.Question `json:"question"`
	ClusterID    string             `json:"cluster_id"`
	ClusterSize  int                `json:"cluster_size"`
	AggUpvotes   int64              `json:"agg_upvotes"`
	AggDownvotes int64              `json:"agg_downvotes"`
	Minority     bool               `json:"minority"` // seated through the reserved minority fill
}

// TopN assembles the contest's top list. Candidates are approved cluster
// representatives ordered by rank score (ties broken oldest-first). The
// list fills in two phases: the main fill takes TopCount-MinoritySlots
// seats with at most ClusterCap questions per tag, then the minority fill
// seats candidates whose tags are disjoint from the main fill's tags,
// falling back to the next-highest unseated candidates so the list is never
// shorter than the candidate pool allows. The result is deterministic for
// a given store state.
func (e *Engine) TopN(ctx context.Context, contestID string) ([]TopEntry, error) {
	clusters, err := e.clusters.ListByContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("list contest clusters: %w", err)
	}

	candidates := make([]TopEntry, 0, len(clusters))
	for _, c := range clusters {
		rep, err := e.questions.GetByID(ctx, c.RepresentativeID)
		if err != nil {
			if errors.Is(err, question.ErrNotFound) {
				e.logger.Warn("cluster representative missing, skipping",
					"cluster_id", c.ID,
					"question_id", c.RepresentativeID)
				continue
			}
			return nil, fmt.Errorf("load representative %s: %w", c.RepresentativeID, err)
		}
		if rep.Status != question.StatusApproved {
			continue
		}
		candidates = append(candidates, TopEntry{
			Question:     rep,
			ClusterID:    c.ID,
			ClusterSize:  len(c.MemberIDs),
			AggUpvotes:   c.AggUpvotes,
			AggDownvotes: c.AggDownvotes,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return lessCandidate(candidates[i].Question, candidates[j].Question)
	})

	return seatCandidates(candidates, e.selection), nil
}

// lessCandidate orders by rank score descending, then by submission time
// ascending, then by ID so equal-score listings never flap between reads.
func lessCandidate(a, b *question.Question) bool {
	if a.RankScore != b.RankScore {
		return a.RankScore > b.RankScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// seatCandidates runs the two-phase fill over score-ordered candidates.
func seatCandidates(candidates []TopEntry, sel Selection) []TopEntry {
	if sel.TopCount <= 0 || len(candidates) == 0 {
		return []TopEntry{}
	}

	mainSeats := sel.TopCount - sel.MinoritySlots
	if mainSeats < 0 {
		mainSeats = 0
	}

	// Main fill: highest scores first, capped per tag so one tag group
	// cannot crowd out the popular portion.
	tagCount := make(map[string]int)
	main := make([]TopEntry, 0, mainSeats)
	var overflow []TopEntry
	for _, cand := range candidates {
		if len(main) < mainSeats && underTagCap(cand.Question.Tags, tagCount, sel.ClusterCap) {
			for _, tag := range cand.Question.Tags {
				tagCount[tag]++
			}
			main = append(main, cand)
			continue
		}
		overflow = append(overflow, cand)
	}

	seatsLeft := sel.TopCount - len(main)
	if seatsLeft > len(overflow) {
		seatsLeft = len(overflow)
	}
	if seatsLeft == 0 {
		return main
	}

	// Minority fill: prefer candidates whose tags do not intersect the tags
	// seated during the main fill, so underrepresented concerns surface.
	// Disjointness is judged against the popular portion only; two reserved
	// seats may share a tag with each other.
	mainTags := make(map[string]bool, len(tagCount))
	for tag := range tagCount {
		mainTags[tag] = true
	}

	seated := make([]bool, len(overflow))
	minority := make([]TopEntry, 0, seatsLeft)
	for i, cand := range overflow {
		if len(minority) == seatsLeft {
			break
		}
		if !disjointTags(cand.Question.Tags, mainTags) {
			continue
		}
		cand.Minority = true
		minority = append(minority, cand)
		seated[i] = true
	}

	// Fallback: hand leftover reserved seats to the next-highest unseated
	// candidates so the list length is only bounded by the pool.
	for i, cand := range overflow {
		if len(minority) == seatsLeft {
			break
		}
		if seated[i] {
			continue
		}
		minority = append(minority, cand)
	}

	// Each phase preserved score order; splice the reserved seats after
	// the popular portion.
	out := make([]TopEntry, 0, len(main)+len(minority))
	out = append(out, main...)
	out = append(out, minority...)
	return out
}

// underTagCap reports whether seating a question with these tags keeps
// every tag group within the per-tag cap. Untagged questions never hit a
// cap.
func underTagCap(tags []string, tagCount map[string]int, limit int) bool {
	if limit <= 0 {
		return true
	}
	for _, tag := range tags {
		if tagCount[tag] >= limit {
			return false
		}
	}
	return true
}

// disjointTags reports whether none of the tags are already seated.
// Untagged questions count as disjoint.
func disjointTags(tags []string, seated map[string]bool) bool {
	for _, tag := range tags {
		if seated[tag] {
			return false
		}
	}
	return true
}
