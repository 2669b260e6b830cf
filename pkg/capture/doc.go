// Package capture provides an embeddable microphone-to-flash recorder.
//
// A [Recorder] owns a block pool, a capture source and a storage sink and
// runs one capture session at a time: it resumes the flash power domain,
// erases the target region, streams fixed-size PCM blocks from the
// microphone into flash in capture order, reads the written range back and
// suspends the flash again, on every path.
//
// # Basic Usage
//
//	cfg := capture.DefaultConfig()
//	rec, err := capture.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rec.Close()
//
//	recording, err := rec.Capture(context.Background(), 2)
//	if err != nil {
//	    fmt.Println(capture.ErrorLine(err))
//	    return
//	}
//	fmt.Println(recording.SampleCount())
//
// # Devices
//
// By default the recorder uses the simulated PDM microphone, fed from the
// generator named by [Config.Source], and an in-memory NOR flash (or a
// flash image file when [Config.FlashImage] is set). Real devices can be
// injected with [WithSource] and [WithSink].
//
// # Errors
//
// Session failures are *StageError values wrapping one of the sentinel
// errors. Use errors.Is to classify them and [Code] to obtain the negative
// errno-style value the shell prints.
package capture
