// Package agent keeps the catalog of agents the chat backend can route to.
//
// # Directory
//
// The Directory holds the most recently loaded catalog:
//
//	dir := agent.NewDirectory(logger)
//	if err := dir.Load(ctx, apiClient); err != nil {
//	    // previous contents are kept
//	}
//
// Key operations:
//
//   - Load(ctx, lister): Replace the catalog, sorted by name
//   - All(): Every agent
//   - FindByName(name): Case-insensitive lookup
//   - Search(query): Case-insensitive substring match
//   - Resolve(ref): Fill in a partial agent reference
//
// Stream events and history records often carry only an agent name.
// Resolve turns those into full references with id, avatar and role.
package agent
