// Package framegrid is the capture dialog state machine: it records a clip,
// turns it into a frame grid and lets the user retry, accept or close.
//
// Quick start:
//
//	c, err := framegrid.New(framegrid.Options{
//	    Camera:       cam,
//	    Decoder:      extract.NewGstDecoder(""),
//	    Recording:    capture.DefaultRecordingConfig(),
//	    Extraction:   extract.DefaultConfig(),
//	    OnImageReady: func(url string) { attach(url) },
//	    OnClose:      func() { hideDialog() },
//	})
//	updates, _ := c.Subscribe("ui")
//	_ = c.Start()
//	for {
//	    s, err := updates.Receive(ctx)
//	    if err != nil {
//	        break
//	    }
//	    render(s) // countdown, progress, error, image
//	}
//
// Guarantees:
//   - OnImageReady is called at most once, only from Accept
//   - OnClose is called exactly once, on Accept or Close
//   - a snapshot never carries both an image and an error
//   - the camera is released before processing starts and before Retry or
//     Close return
package framegrid
