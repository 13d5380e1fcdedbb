// Package explorer is the view model behind a Skyframe graph exploration
// session.
//
// An Explorer holds one persisted domain.View: the search pattern, the set of
// nodes shown on the graph and the largest match count seen. Searches and graph
// renders are two independent action streams per view, both driven by a shared
// debounce.Scheduler, so fast typing or clicking never floods the backend and a
// slow render never overlaps another render of the same view.
//
// Listeners registered with Subscribe receive an Event whenever results, the
// graph or an error change. A failed action leaves the previous results or graph
// in place.
package explorer
