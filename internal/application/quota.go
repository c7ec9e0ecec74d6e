package application

import (
	"fmt"
	"math"
	"sort"
)

// QuotaPolicy holds the numeric limits applied to one submission.
type QuotaPolicy struct {
	PerTeamCap int
	DailyQuota int
}

// Usage sums an account's transactions inside the current boundary.
type Usage struct {
	PerTeam map[string]int
	Total   int
}

// ValidateSubmissionShape checks a raw {teamId: count} submission and returns
// the positive entries and their total. Checks run in order: negative counts,
// unknown teams, self-vote, zero total, oversized total.
func ValidateSubmissionShape(submission map[string]int, knownTeams map[string]bool, affiliation *string) (map[string]int, int, error) {
	vErr := &ValidationError{}
	teamIDs := make([]string, 0, len(submission))
	for teamID := range submission {
		teamIDs = append(teamIDs, teamID)
	}
	sort.Strings(teamIDs)

	for _, teamID := range teamIDs {
		count := submission[teamID]
		if count < 0 {
			vErr.add("votes."+teamID, "vote counts must be non-negative integers")
			continue
		}
		if !knownTeams[teamID] {
			vErr.add("votes."+teamID, "unknown team")
		}
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid vote submission"
		return nil, 0, vErr
	}

	if affiliation != nil && *affiliation != "" && submission[*affiliation] > 0 {
		return nil, 0, fmt.Errorf("%w: cannot vote for your own team", ErrForbidden)
	}

	normalized := make(map[string]int, len(submission))
	total := 0
	for _, teamID := range teamIDs {
		if count := submission[teamID]; count > 0 {
			if count > math.MaxInt-total {
				return nil, 0, NewValidationError("votes", "vote counts are too large")
			}
			normalized[teamID] = count
			total += count
		}
	}
	if total == 0 {
		return nil, 0, NewValidationError("votes", "at least one vote is required")
	}
	return normalized, total, nil
}

// SummarizeUsage sums existing in-boundary transactions per team and overall.
func SummarizeUsage(existing []VoteTransaction) Usage {
	usage := Usage{PerTeam: make(map[string]int)}
	for _, tx := range existing {
		usage.PerTeam[tx.TeamID] += tx.VoteCount
		usage.Total += tx.VoteCount
	}
	return usage
}

// CheckQuota rejects a normalized submission that would push any team past the
// per-team cap or the account past its quota for the boundary.
func CheckQuota(normalized map[string]int, total int, usage Usage, policy QuotaPolicy) error {
	teamIDs := make([]string, 0, len(normalized))
	for teamID := range normalized {
		teamIDs = append(teamIDs, teamID)
	}
	sort.Strings(teamIDs)

	for _, teamID := range teamIDs {
		used := usage.PerTeam[teamID]
		if normalized[teamID] > policy.PerTeamCap-used {
			vErr := NewValidationError("votes."+teamID,
				fmt.Sprintf("at most %d votes per team are allowed; %d already used", policy.PerTeamCap, used))
			return vErr
		}
	}

	if total > policy.DailyQuota-usage.Total {
		remaining := policy.DailyQuota - usage.Total
		if remaining < 0 {
			remaining = 0
		}
		return NewValidationError("votes",
			fmt.Sprintf("quota exceeded: %d of %d votes remaining", remaining, policy.DailyQuota))
	}
	return nil
}

// Remaining returns the quota left after usage, never negative.
func (p QuotaPolicy) Remaining(usage Usage) int {
	if left := p.DailyQuota - usage.Total; left > 0 {
		return left
	}
	return 0
}
