package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// TelemetryBatch is the Kafka message carrying one generator tick
type TelemetryBatch struct {
	BatchID     string           `json:"batch_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Records     []traffic.Record `json:"records"`
}

// NewTelemetryBatch wraps a tick's records
func NewTelemetryBatch(records []traffic.Record) *TelemetryBatch {
	b := &TelemetryBatch{Records: records}
	if len(records) > 0 {
		b.BatchID = records[0].BatchID
		b.GeneratedAt = records[0].Timestamp
	}
	return b
}

// Validate checks every record in the batch
func (b *TelemetryBatch) Validate() error {
	if len(b.Records) == 0 {
		return fmt.Errorf("batch %s has no records", b.BatchID)
	}
	for i := range b.Records {
		if err := b.Records[i].Validate(); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, b.Records[i].Location, err)
		}
	}
	return nil
}

// FrameMessage is the Kafka message carrying a rendered dashboard frame
type FrameMessage struct {
	Type  MessageType     `json:"type"`
	Frame dashboard.Frame `json:"frame"`
}

// CongestionAlert is the message format for congestion alerts
type CongestionAlert struct {
	Type         string    `json:"type"` // CONGESTION_TRIGGERED, CONGESTION_CLEARED
	Location     string    `json:"location"`
	SensorID     string    `json:"sensor_id,omitempty"`
	VehicleCount int       `json:"vehicle_count"`
	AvgSpeed     int       `json:"avg_speed"`
	Duration     float64   `json:"duration_seconds"`
	StartTime    time.Time `json:"start_time"`
	ObservedAt   time.Time `json:"observed_at"`
}

const (
	AlertTypeTriggered = "CONGESTION_TRIGGERED"
	AlertTypeCleared   = "CONGESTION_CLEARED"
)

// EncodeTelemetryBatch encodes a TelemetryBatch to JSON
func EncodeTelemetryBatch(batch *TelemetryBatch) ([]byte, error) {
	return json.Marshal(batch)
}

// DecodeTelemetryBatch decodes JSON to TelemetryBatch
func DecodeTelemetryBatch(data []byte) (*TelemetryBatch, error) {
	var batch TelemetryBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// EncodeFrame encodes a frame as a FrameMessage
func EncodeFrame(frame dashboard.Frame) ([]byte, error) {
	return json.Marshal(&FrameMessage{Type: MsgTypeFrame, Frame: frame})
}

// DecodeFrame decodes a FrameMessage
func DecodeFrame(data []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeCongestionAlert encodes a CongestionAlert to JSON
func EncodeCongestionAlert(alert *CongestionAlert) ([]byte, error) {
	return json.Marshal(alert)
}

// DecodeCongestionAlert decodes JSON to CongestionAlert
func DecodeCongestionAlert(data []byte) (*CongestionAlert, error) {
	var alert CongestionAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
