package ui

import (
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/tasks"
)

// groupsFetchedMsg carries the group listing loaded at startup.
type groupsFetchedMsg struct {
	groups []repositories.GroupInfo
	err    error
}

// progressUpdateMsg forwards one engine progress event to Update.
type progressUpdateMsg tasks.ProgressUpdate

// sortCompleteMsg signals the end of a sort run, success or not.
type sortCompleteMsg struct {
	result *models.SortResult
	err    error
}
