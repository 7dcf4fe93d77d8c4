package acquire

import (
	"time"

	"github.com/lumascope/acquire/internal/pubsub"
)

// channelPublisher is the completion boundary between the acquisition
// engine and its external collaborators (storage, UI). It converts each
// task delivery into calibrated, timestamped channel records, fans them
// out per delivery, and additionally announces whole frames when a
// delivery completes one. Collaborators subscribe here; they never call
// into task or scheduler internals.
type channelPublisher struct {
	sourceID string

	stateChanges    *pubsub.Topic[StateChange]
	channelsUpdated *pubsub.Topic[ChannelsUpdate]
	frames          *pubsub.Topic[FrameSet]
	aborts          *pubsub.Topic[AbortNotice]
}

func newChannelPublisher(sourceID string) *channelPublisher {
	return &channelPublisher{
		sourceID:        sourceID,
		stateChanges:    pubsub.NewTopic[StateChange](),
		channelsUpdated: pubsub.NewTopic[ChannelsUpdate](),
		frames:          pubsub.NewTopic[FrameSet](),
		aborts:          pubsub.NewTopic[AbortNotice](),
	}
}

// publish is the deliveryFunc handed to every task. It runs on the worker
// goroutine, so notifications for one slot keep production order.
func (p *channelPublisher) publish(channels []ChannelPartial, continuous bool, sessionID string, complete, stopping bool) {
	now := time.Now().UTC()
	records := make([]ChannelRecord, 0, len(channels))
	for index, ch := range channels {
		records = append(records, makeChannelRecord(ch, index, sessionID, stopping, now))
	}
	p.channelsUpdated.Publish(ChannelsUpdate{
		SourceID:  p.sourceID,
		SessionID: sessionID,
		Snapshot:  !continuous,
		Records:   records,
	})
	if complete && len(channels) > 0 {
		p.frames.Publish(FrameSet{
			SourceID:   p.sourceID,
			SessionID:  sessionID,
			FrameIndex: channels[0].FrameIndex,
			Channels:   channels,
		})
	}
}

// makeChannelRecord attaches calibration metadata and a capture timestamp
// to one channel payload. Missing calibrations fall back to identity so
// every record is dimensionally described.
func makeChannelRecord(ch ChannelPartial, index int, sessionID string, stopping bool, capturedAt time.Time) ChannelRecord {
	state := ch.state()
	if state != StateComplete && stopping {
		state = StateMarked
	}

	intensity := IdentityCalibration()
	if ch.Intensity != nil {
		intensity = *ch.Intensity
	}
	dimensional := make([]Calibration, 2)
	for i := range dimensional {
		if i < len(ch.Dimensional) && ch.Dimensional[i].Scale != 0 {
			dimensional[i] = ch.Dimensional[i]
		} else {
			dimensional[i] = IdentityCalibration()
		}
	}

	return ChannelRecord{
		ChannelID:   ch.ChannelID,
		Index:       index,
		Name:        ch.Name,
		Data:        ch.Data,
		Shape:       ch.Shape,
		SubArea:     ch.SubArea,
		State:       state,
		Intensity:   intensity,
		Dimensional: dimensional,
		Properties:  ch.Properties,
		FrameIndex:  ch.FrameIndex,
		SessionID:   sessionID,
		CapturedAt:  capturedAt,
	}
}
