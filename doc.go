/*
Package skyscope explores a Skyframe graph served over HTTP.

A Skyframe server answers two questions: which nodes match a SQLite LIKE
pattern, and what an SVG rendering of a set of nodes looks like. Skyscope keeps
per-view state on top of that protocol (the search pattern, the nodes shown on
the graph, the largest match count seen) and paces the traffic it sends.

# Pacing

Each view has two action streams, search and render, driven by a
debounce.Scheduler. A request only reaches the backend after a quiet period
(250ms for searches, 1s for renders by default). At most one request per stream
is in flight; requests arriving meanwhile collapse into a single trailing one
that carries the latest payload.

# Usage

New builds every component from a config.Config:

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	app, err := skyscope.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close(context.Background())

	view, err := app.Views.Open(ctx, "main")
	if err != nil {
		log.Fatal(err)
	}
	view.Subscribe(func(ev explorer.Event) { fmt.Println(ev.Kind, ev.NodeCount) })
	view.Search("//src/main%")

The HTTP, MCP and terminal front ends in cmd/skyscope are thin layers over the
same App.
*/
package skyscope
