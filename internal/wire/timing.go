package wire

import (
	"fmt"
	"math"
)

// TimingRecord is the wire layout of one pull cycle's statistics. No
// code in this module builds one from the orchestrator's TimingData.
type TimingRecord struct {
	CycleIndex         uint64
	CycleTimestampNs   int64
	UDPTimeS           float64
	ParseTimeS         float64
	EventTimeS         float64
	TotalTimeS         float64
	DataProcessedBytes uint64
	DataRateMiBS       float64
}

// TimingRecordSize is the byte-exact wire size of a TimingRecord.
const TimingRecordSize = 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8

// MarshalTimingRecord writes r into buf, which must be at least
// TimingRecordSize bytes.
func MarshalTimingRecord(r TimingRecord, buf []byte) error {
	if len(buf) < TimingRecordSize {
		return fmt.Errorf("buffer too small: %d < %d", len(buf), TimingRecordSize)
	}

	i := 0
	byteOrder.PutUint64(buf[i:], r.CycleIndex)
	i += 8
	byteOrder.PutUint64(buf[i:], uint64(r.CycleTimestampNs))
	i += 8
	byteOrder.PutUint64(buf[i:], math.Float64bits(r.UDPTimeS))
	i += 8
	byteOrder.PutUint64(buf[i:], math.Float64bits(r.ParseTimeS))
	i += 8
	byteOrder.PutUint64(buf[i:], math.Float64bits(r.EventTimeS))
	i += 8
	byteOrder.PutUint64(buf[i:], math.Float64bits(r.TotalTimeS))
	i += 8
	byteOrder.PutUint64(buf[i:], r.DataProcessedBytes)
	i += 8
	byteOrder.PutUint64(buf[i:], math.Float64bits(r.DataRateMiBS))

	return nil
}

// UnmarshalTimingRecord reads a TimingRecordSize-byte record from buf.
func UnmarshalTimingRecord(buf []byte) (TimingRecord, error) {
	if len(buf) < TimingRecordSize {
		return TimingRecord{}, fmt.Errorf("buffer too small: %d < %d", len(buf), TimingRecordSize)
	}

	var r TimingRecord
	i := 0
	r.CycleIndex = byteOrder.Uint64(buf[i:])
	i += 8
	r.CycleTimestampNs = int64(byteOrder.Uint64(buf[i:]))
	i += 8
	r.UDPTimeS = math.Float64frombits(byteOrder.Uint64(buf[i:]))
	i += 8
	r.ParseTimeS = math.Float64frombits(byteOrder.Uint64(buf[i:]))
	i += 8
	r.EventTimeS = math.Float64frombits(byteOrder.Uint64(buf[i:]))
	i += 8
	r.TotalTimeS = math.Float64frombits(byteOrder.Uint64(buf[i:]))
	i += 8
	r.DataProcessedBytes = byteOrder.Uint64(buf[i:])
	i += 8
	r.DataRateMiBS = math.Float64frombits(byteOrder.Uint64(buf[i:]))

	return r, nil
}
