package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Parser accumulates NMEA sentences into a Fix. RMC sentences complete a
// fix; GGA sentences only contribute altitude and satellite count.
type Parser struct {
	current Fix
}

// Feed parses one line. It returns the updated fix and true when the line
// was an RMC sentence. Lines that are not NMEA sentences are ignored.
func (p *Parser) Feed(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)

	// NMEA sentences usually start with '$'
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)

		p.current.Time = m.Time.String()
		p.current.Date = m.Date.String()
		p.current.Latitude = m.Latitude
		p.current.Longitude = m.Longitude
		p.current.SpeedKnots = m.Speed
		p.current.CourseDeg = m.Course
		p.current.Validity = string(m.Validity)
		p.current.Timestamp = timestamp(m.Date, m.Time)
		return p.current, true, nil

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		p.current.Altitude = m.Altitude
		p.current.Satellites = m.NumSatellites
	}
	return Fix{}, false, nil
}

func timestamp(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Time{}
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
