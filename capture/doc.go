/*
Package capture records a fixed-length video clip from a camera.

A Session acquires a Camera, picks the first recording format the stream
supports (VP8 WebM, then WebM, then MP4), records for a fixed window while
emitting a per-second countdown, and returns the concatenated chunks as a
Clip. The camera is always released before Record returns.

# Usage

	cam, err := capture.NewGstCamera(capture.GstConfig{Source: "v4l2", Device: "/dev/video0"})
	if err != nil {
	    log.Fatal(err)
	}

	session, err := capture.NewSession(cam, capture.DefaultRecordingConfig())
	if err != nil {
	    log.Fatal(err)
	}

	clip, err := session.Record(ctx, func(remaining int) {
	    fmt.Printf("%d...\n", remaining)
	})
	if err != nil {
	    fmt.Println(capture.UserMessage(err))
	    return
	}

# Errors

Every failure is an *Error carrying a Category and a fixed user-facing
message. Use CategoryOf for metrics and UserMessage for display; the
wrapped cause is for logs only.

# Timing

The countdown ticker and the stop timer are independent. The recorder is
asked for data every Timeslice, so a 9 second window yields about nine
chunks plus the final flush.

# Pipeline

	source → videoconvert → videoscale → capsfilter → tee
	                                                   ├→ queue → videorate → RGB → appsink   (preview)
	                                                   └→ queue → encoder → muxer → appsink   (recorder, attached at Start)
*/
package capture
