// Package tui implements the regionplay terminal user interface.
//
// The model never touches the workspace directly. Key presses become
// functions dispatched onto the workspace's event loop; the Bridge, an
// Observer on that loop, sends snapshots and journal lines back to the
// program.
//
// Component architecture:
//
//	model.go      root model, message routing, Init/Update/View
//	bridge.go     observer that feeds the program from the event loop
//	keys.go       key bindings and prompts mapped to workspace actions
//	theme.go      centralized color + style definitions
//	header.go     top bar and footer hints
//	regionlist.go region list with frame children nested under parents
//	detail.go     region metadata, bounds and playback controls
//	journal.go    recent region events and action outcomes
//	helpers.go    region tree building, swatches, truncation
package tui
