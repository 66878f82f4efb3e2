// Package preview distributes live camera frames to viewers while a
// capture attempt holds the camera.
//
// Each viewer gets a single-slot mailbox. Publish never blocks: a frame the
// viewer has not consumed yet is overwritten and counted as a drop, so a
// slow viewer always sees the freshest frame rather than a backlog.
//
//	sup := preview.New()
//	read := sup.Subscribe("viewer-1")
//	defer sup.Unsubscribe("viewer-1")
//	for f := read(); f != nil; f = read() {
//	    _ = f.EncodeJPEG(w, 80)
//	}
package preview
