// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for smart sorting:
//  1. [GroupListView] : Browse groups and their playlist counts
//  2. [ConfirmView] : Pick the sort scope and toggle model refinement
//  3. [SortView] : Monitor real-time pipeline progress
//  4. [ResultView] : Display the final order, method, and run summary
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the SortEngine, providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
