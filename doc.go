// Package nsxfile reads segmented multi-channel neural recordings stored in
// the NSx binary container and derives spike events from the recovered
// signal.
//
// A Session owns one open recording. Opening a file parses the header and
// builds the segment index without touching sample data; Read resolves a
// time or datapoint range into exact byte spans and materializes one sample
// matrix per segment, either by buffering whole segments or by streaming
// only the requested channels off disk. DetectSpikes band-limits a loaded
// channel, thresholds it against a median-absolute-deviation noise estimate,
// and excises the surviving peak waveforms.
//
//	session, err := nsxfile.Open("recording.ns5")
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//
//	err = session.Read(nsxfile.ReadOptions{
//		Channels: []int{1, 2, 3},
//		Start:    0.5,
//		End:      1.2,
//		Units:    nsxfile.UnitsSeconds,
//	})
//
// Sessions are not safe for concurrent use; callers serialize their own
// calls against one Session.
package nsxfile
