// Package live runs one patient intake conversation as a state machine.
//
// A Machine owns a single goroutine that holds the current state and the
// conversation session. User commands and the results of background work
// (capture, transcription, dialogue, playback) arrive on one inbox and are
// applied in order, so at most one of capture, transcription and playback is
// ever active. Every state owns its resources and releases them on exit.
//
// Basic usage:
//
//	m := live.New(live.DefaultConfig(), live.Deps{
//		Device:      audio.NewMalgoDevice(),
//		Transcriber: stt.NewClient(apiURL, token),
//		Dialogue:    dialogue.NewController(backend),
//		Speech:      playback.New(synth, sink, playback.Options{}),
//		Submitter:   submission.NewFinalizer(apiURL, token),
//	})
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Close()
//
//	for event := range m.Events() {
//		switch e := event.(type) {
//		case *live.StateChangedEvent:
//			fmt.Println(e.From, "->", e.To)
//		}
//	}
package live
