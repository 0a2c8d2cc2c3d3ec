// Package chart renders large numeric series onto a host surface and keeps
// them interactive.
//
// # Overview
//
// A Renderer ties together the pieces that make big charts hard:
//
//   - backend picks the best graphics tier the host offers (native GPU,
//     a GPU device shared by the host, or a CPU rasterizer) and falls back
//     down that list when a tier fails or its surface is lost.
//   - lod and perf trade detail for frame time: the level of detail follows
//     the viewport and data size, and the frame-time monitor coarsens or
//     refines it with hysteresis.
//   - pool keeps vertex data resident in one device arena with best-fit
//     allocation, generation-checked handles and compaction.
//
// # Quick Start
//
//	store := source.NewStore()
//	store.Put("latency", series.New(samples))
//
//	host := backend.NewSystemHost(presenter, nil)
//	r, err := chart.NewRenderer(host, store)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	res := r.Render(chart.Encoding{}, "latency", chart.Viewport{Width: 800, Height: 400, Scale: 1})
//	if res.Status == chart.StatusError {
//	    return res.Err
//	}
//
// # Threading
//
// Render is meant to be called from one render loop. Data arrives from other
// goroutines through source.Feed and source.Store, which hand over complete
// immutable snapshots only.
//
// # Logging
//
// Nothing is logged by default. See SetLogger.
package chart
