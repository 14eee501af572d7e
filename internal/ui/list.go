package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/groupmix/smartsort/internal/repositories"
)

var _ list.Item = groupItem{}

// groupItem wraps [repositories.GroupInfo] to implement [list.Item].
type groupItem struct {
	group repositories.GroupInfo
}

func (i groupItem) FilterValue() string { return i.group.GroupID }
func (i groupItem) Title() string       { return i.group.GroupID }
func (i groupItem) Description() string {
	return fmt.Sprintf("%d playlists • %d songs", i.group.PlaylistCount, i.group.SongCount)
}
