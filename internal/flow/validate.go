package flow

import "fmt"

// IssueKind classifies a structural warning.
type IssueKind string

const (
	IssueDanglingReference IssueKind = "dangling_reference"
	IssueOrphanedBlock     IssueKind = "orphaned_block"
	IssueMissingInput      IssueKind = "missing_input"
	IssueMissingOutput     IssueKind = "missing_output"
	IssueDuplicateID       IssueKind = "duplicate_id"
	IssueUnknownKind       IssueKind = "unknown_kind"
)

// Issue is a non-fatal structural warning about a flow.
type Issue struct {
	Kind         IssueKind `json:"kind"`
	BlockIDs     []string  `json:"block_ids,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Message      string    `json:"message"`
}

// Validate checks the whole graph and returns every structural warning.
// It never fails: a broken flow still yields a list of issues.
func (f *Flow) Validate() []Issue {
	var issues []Issue

	seen := make(map[string]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if seen[b.ID] {
			issues = append(issues, Issue{
				Kind:     IssueDuplicateID,
				BlockIDs: []string{b.ID},
				Message:  fmt.Sprintf("block id %q is used more than once", b.ID),
			})
		}
		seen[b.ID] = true
		if !b.Kind.Valid() {
			issues = append(issues, Issue{
				Kind:     IssueUnknownKind,
				BlockIDs: []string{b.ID},
				Message:  fmt.Sprintf("block %q has unknown kind %q", b.ID, b.Kind),
			})
		}
	}

	connected := make(map[string]bool, len(f.Blocks))
	for _, c := range f.Connections {
		var missing []string
		if !seen[c.Source.BlockID] {
			missing = append(missing, c.Source.BlockID)
		}
		if !seen[c.Target.BlockID] {
			missing = append(missing, c.Target.BlockID)
		}
		if len(missing) > 0 {
			issues = append(issues, Issue{
				Kind:         IssueDanglingReference,
				BlockIDs:     missing,
				ConnectionID: c.ID,
				Message:      fmt.Sprintf("connection %q references missing block(s) %v", c.ID, missing),
			})
			continue
		}
		connected[c.Source.BlockID] = true
		connected[c.Target.BlockID] = true
	}

	if len(f.Blocks) > 1 {
		var orphans []string
		for _, b := range f.Blocks {
			if !connected[b.ID] {
				orphans = append(orphans, b.ID)
			}
		}
		if len(orphans) > 0 {
			issues = append(issues, Issue{
				Kind:     IssueOrphanedBlock,
				BlockIDs: orphans,
				Message:  fmt.Sprintf("%d block(s) have no connections", len(orphans)),
			})
		}
	}

	if len(f.Blocks) > 0 {
		var hasInput, hasOutput bool
		for _, b := range f.Blocks {
			switch b.Kind {
			case KindInput:
				hasInput = true
			case KindOutput:
				hasOutput = true
			case KindTransform, KindFilter, KindAggregate, KindCondition, KindLoop,
				KindExternalCall, KindDatabase, KindCustom:
			}
		}
		if !hasInput {
			issues = append(issues, Issue{Kind: IssueMissingInput, Message: "flow has no input block"})
		}
		if !hasOutput {
			issues = append(issues, Issue{Kind: IssueMissingOutput, Message: "flow has no output block"})
		}
	}

	return issues
}
