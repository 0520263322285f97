package watcher

import "sort"

// ChangeAnalysis describes the sync work a batch of changes requires
type ChangeAnalysis struct {
	NeedFullSync   bool
	NewSourceFiles []string
	ChangedFiles   []string
}

// AnalyzeChanges merges debounced events into the sync work they require.
// A full sync picks up new source files itself, so they are only listed
// when no full sync is needed.
func AnalyzeChanges(events ...ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{}
	sources := make(map[string]bool)

	for _, event := range events {
		analysis.ChangedFiles = append(analysis.ChangedFiles, event.Paths...)
		switch event.Type {
		case ChangeTypeBuildFile:
			// Target definitions or dependencies changed
			analysis.NeedFullSync = true
		case ChangeTypeSourceFile:
			for _, p := range event.Paths {
				sources[p] = true
			}
		}
	}

	if !analysis.NeedFullSync {
		for p := range sources {
			analysis.NewSourceFiles = append(analysis.NewSourceFiles, p)
		}
		sort.Strings(analysis.NewSourceFiles)
	}
	return analysis
}
