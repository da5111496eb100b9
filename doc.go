// Package pcedit is an engine for streaming, selecting and editing large
// point clouds against a versioned edit session.
//
// # Quick Start
//
//	src := tilesource.NewHTTPSource("https://api.example.com")
//	ed, _ := pcedit.New(src,
//		pcedit.WithBackend(oplog.NewHTTPBackend("https://api.example.com")),
//	)
//	defer ed.Close()
//
//	_ = ed.Load(ctx, "scan-42", nil) // tile list from the source catalog
//	_ = ed.OpenSession(ctx, "")      // "" starts a new session
//
// # Editing
//
// Points are marked with the brush tools and only change state on Commit:
//
//	ed.SetTool(event.ToolDelete)
//	ed.PointerDown(selection.Pointer{X: 400, Y: 300})
//	ed.PointerMove(selection.Pointer{X: 410, Y: 300})
//	ed.PointerUp()
//	res, err := ed.Commit(ctx)
//
// Commit splits the pending indices into chunked operations and submits
// them one at a time. A version conflict marks the session stale; reopen
// it with OpenSession before editing further.
//
// # Compaction
//
// Compact drops deleted points once a load has finished. Pending
// selections and ML overlays follow the points to their new positions.
//
// # Components
//
// The editor wires independent packages that can be used on their own:
//
//   - tile: tile descriptors and the binary payload codec
//   - tilesource: local, HTTP, S3, MinIO and cached tile sources
//   - stream: concurrent tile loading into a point store
//   - pointbuf: the point store, compaction and writer leases
//   - camera: initial camera framing
//   - selection: ray picking and the brush state machine
//   - oplog: edit sessions and operation submission
//   - overlay: ML preview client and overlay painting
//   - render: view state and redraw coalescing
//   - config: YAML configuration with validation
package pcedit
