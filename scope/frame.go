package scope

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Frames are transferred as generic protobuf structs:
//
//	time:     {kind: "time", stream, timestamp, values: {channel: value}}
//	spectral: {kind: "spectral", stream, timestamp, from, to, values: [...], frequencyMarkers: {...}, magnitudeMarkers: {...}}
const (
	timeFrameKind     = "time"
	spectralFrameKind = "spectral"
)

func encodeTimeFrame(frame *TimeFrame) *structpb.Struct {
	values := make(map[string]*structpb.Value, len(frame.Values))
	for channel, value := range frame.Values {
		values[string(channel)] = structpb.NewNumberValue(value)
	}

	result := encodeFrameHeader(timeFrameKind, frame.Frame)
	result.Fields["values"] = structpb.NewStructValue(&structpb.Struct{Fields: values})
	return result
}

func encodeSpectralFrame(frame *SpectralFrame) *structpb.Struct {
	values := make([]*structpb.Value, len(frame.Values))
	for i, value := range frame.Values {
		values[i] = structpb.NewNumberValue(value)
	}

	result := encodeFrameHeader(spectralFrameKind, frame.Frame)
	result.Fields["from"] = structpb.NewNumberValue(frame.FromFrequency)
	result.Fields["to"] = structpb.NewNumberValue(frame.ToFrequency)
	result.Fields["values"] = structpb.NewListValue(&structpb.ListValue{Values: values})
	result.Fields["frequencyMarkers"] = encodeMarkers(frame.FrequencyMarkers)
	result.Fields["magnitudeMarkers"] = encodeMarkers(frame.MagnitudeMarkers)
	return result
}

func encodeFrameHeader(kind string, frame Frame) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"kind":      structpb.NewStringValue(kind),
			"stream":    structpb.NewStringValue(string(frame.Stream)),
			"timestamp": structpb.NewStringValue(frame.Timestamp.Format(time.RFC3339Nano)),
		},
	}
}

func encodeMarkers(markers map[MarkerID]float64) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(markers))
	for marker, value := range markers {
		fields[string(marker)] = structpb.NewNumberValue(value)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// decodeFrame returns either a *TimeFrame or a *SpectralFrame.
func decodeFrame(raw *structpb.Struct) (any, error) {
	fields := raw.GetFields()
	header := Frame{
		Stream: StreamID(fields["stream"].GetStringValue()),
	}
	if timestamp := fields["timestamp"].GetStringValue(); timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		header.Timestamp = parsed
	}

	switch kind := fields["kind"].GetStringValue(); kind {
	case timeFrameKind:
		result := &TimeFrame{
			Frame:  header,
			Values: make(map[ChannelID]float64),
		}
		for channel, value := range fields["values"].GetStructValue().GetFields() {
			result.Values[ChannelID(channel)] = value.GetNumberValue()
		}
		return result, nil
	case spectralFrameKind:
		values := fields["values"].GetListValue().GetValues()
		result := &SpectralFrame{
			Frame:            header,
			FromFrequency:    fields["from"].GetNumberValue(),
			ToFrequency:      fields["to"].GetNumberValue(),
			Values:           make([]float64, len(values)),
			FrequencyMarkers: decodeMarkers(fields["frequencyMarkers"]),
			MagnitudeMarkers: decodeMarkers(fields["magnitudeMarkers"]),
		}
		for i, value := range values {
			result.Values[i] = value.GetNumberValue()
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown frame kind %q", kind)
	}
}

func decodeMarkers(raw *structpb.Value) map[MarkerID]float64 {
	result := make(map[MarkerID]float64)
	for marker, value := range raw.GetStructValue().GetFields() {
		result[MarkerID(marker)] = value.GetNumberValue()
	}
	return result
}
