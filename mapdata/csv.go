package mapdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

const tripTimestampLayout = "2006-01-02 15:04:05"

// NYC TLC trip-record column indexes (pre-July-2016 schema).
const (
	colPickupDatetime  = 1
	colDropoffDatetime = 2
	colPickupLon       = 5
	colPickupLat       = 6
	colDropoffLon      = 9
	colDropoffLat      = 10
)

// ParseTripCSV parses a New York TLC trip-record file. The header row is
// skipped. Rows whose pickup or dropoff falls outside the bounding polygon,
// or whose pickup equals the dropoff, or that fail to parse, are dropped and
// counted. Timestamps are interpreted in the given time zone, converted to
// Unix seconds, then scaled by timeResolution.
func ParseTripCSV(path string, zone *time.Location, timeResolution int64, polygon *Polygon) (records []*TripRecord, dropped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("trip dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		return nil, 0, fmt.Errorf("trip dataset: reading header: %w", err)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("trip dataset: %w", err)
		}
		record, ok := parseTripRow(row, zone, timeResolution, polygon)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}
	return records, dropped, nil
}

func parseTripRow(row []string, zone *time.Location, timeResolution int64, polygon *Polygon) (*TripRecord, bool) {
	if len(row) <= colDropoffLat {
		return nil, false
	}

	pickupTime, err := parseTripTimestamp(row[colPickupDatetime], zone)
	if err != nil {
		return nil, false
	}
	dropoffTime, err := parseTripTimestamp(row[colDropoffDatetime], zone)
	if err != nil {
		return nil, false
	}

	pickupLon, err1 := strconv.ParseFloat(row[colPickupLon], 64)
	pickupLat, err2 := strconv.ParseFloat(row[colPickupLat], 64)
	dropoffLon, err3 := strconv.ParseFloat(row[colDropoffLon], 64)
	dropoffLat, err4 := strconv.ParseFloat(row[colDropoffLat], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, false
	}

	if !polygon.Contains(pickupLon, pickupLat) || !polygon.Contains(dropoffLon, dropoffLat) {
		return nil, false
	}
	if pickupLon == dropoffLon && pickupLat == dropoffLat {
		return nil, false
	}

	return &TripRecord{
		PickupLat:   pickupLat,
		PickupLon:   pickupLon,
		DropoffLat:  dropoffLat,
		DropoffLon:  dropoffLon,
		Time:        pickupTime * timeResolution,
		DropoffTime: dropoffTime * timeResolution,
	}, true
}

func parseTripTimestamp(value string, zone *time.Location) (int64, error) {
	t, err := time.ParseInLocation(tripTimestampLayout, value, zone)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
