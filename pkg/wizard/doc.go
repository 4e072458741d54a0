// Package wizard drives one voice-sample collection session.
//
// A Session walks the collector through four steps:
//
//	Info ──SubmitInfo──▶ Sample ──Advance──▶ Record ──Submit──▶ Success
//	  ◀──────Retreat─────   ◀──────Retreat─────
//
// On Info the collector enters metadata (affiliation, organization, category
// and the phrase to pronounce). Sample plays a reference pronunciation of
// the phrase. Record captures a short countdown-limited utterance, lets the
// collector replay or retake it, and uploads it to a path derived from the
// metadata. Success shows the locator of the stored recording. Reset returns
// to Info from any step, releasing the microphone and stopping playback.
//
// The session is safe for concurrent use. Lifecycle notifications (step
// changes, countdown ticks, finalized recordings, upload progress, notices)
// are delivered to Options.OnEvent, never while the session's lock is held.
package wizard
