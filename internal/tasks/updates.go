package tasks

import "fmt"

// ProgressUpdate represents a progress event during a sort run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within the run
	Total   int    // Total steps in the run
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Pipeline phase enumeration
type Phase int

const (
	LoadGroup Phase = iota
	Advise
	FetchMetadata
	HeuristicSort
	VerifyOrder
	Persist
)

func (p Phase) String() string {
	switch p {
	case LoadGroup:
		return "load_group"
	case Advise:
		return "advise"
	case FetchMetadata:
		return "fetch_metadata"
	case HeuristicSort:
		return "heuristic_sort"
	case VerifyOrder:
		return "verify_order"
	case Persist:
		return "persist"
	default:
		return ""
	}
}

const totalSteps = 6

func loadGroupUpdate(groupID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadGroup,
		Step:    1,
		Total:   totalSteps,
		Message: fmt.Sprintf("Loading playlists for group %s...", groupID),
	}
}

func adviseUpdate(songs int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Advise,
		Step:    2,
		Total:   totalSteps,
		Message: fmt.Sprintf("Tuning run parameters for %d songs...", songs),
	}
}

func fetchUpdate(concurrency, batchSize int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchMetadata,
		Step:    3,
		Total:   totalSteps,
		Message: fmt.Sprintf("Fetching metadata (concurrency %d, batches of %d)...", concurrency, batchSize),
	}
}

func sortUpdate(songs int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   HeuristicSort,
		Step:    4,
		Total:   totalSteps,
		Message: fmt.Sprintf("Ordering %d songs...", songs),
	}
}

func verifyUpdate(skipped bool) ProgressUpdate {
	message := "Refining order with the model..."
	if skipped {
		message = "Skipping model verification"
	}
	return ProgressUpdate{
		Phase:   VerifyOrder,
		Step:    5,
		Total:   totalSteps,
		Message: message,
	}
}

func persistUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    6,
		Total:   totalSteps,
		Message: "Saving sorted order...",
	}
}
