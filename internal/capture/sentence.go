package capture

import (
	"fmt"

	"github.com/adrianmo/go-nmea"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

const (
	// TalkerID identifies sentences sent by the receiver board.
	TalkerID = "UP"
	// TypeTDA carries the four latched arrival timestamps of one cycle.
	TypeTDA = "TDA"
)

// TDA is the $UPTDA sentence: $UPTDA,<t0>,<t1>,<t2>,<t3>*hh
type TDA struct {
	nmea.BaseSentence
	Capture position.Capture
}

func init() {
	nmea.MustRegisterParser(TypeTDA, parseTDA)
}

func parseTDA(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeTDA)
	if len(s.Fields) != len(position.Capture{}) {
		return nil, fmt.Errorf("nmea: %s expected %d fields, got %d", s.Prefix(), len(position.Capture{}), len(s.Fields))
	}

	m := TDA{BaseSentence: s}
	for i := range m.Capture {
		v := p.Int64(i, fmt.Sprintf("t%d", i))
		if v < 0 || v > int64(^uint32(0)) {
			return nil, fmt.Errorf("nmea: %s t%d out of range: %d", s.Prefix(), i, v)
		}
		m.Capture[i] = position.Tick(v)
	}
	return m, p.Err()
}

// FormatTDA renders a capture as a checksummed $UPTDA sentence.
func FormatTDA(c position.Capture) string {
	body := fmt.Sprintf("%s%s,%d,%d,%d,%d", TalkerID, TypeTDA, c[0], c[1], c[2], c[3])
	return "$" + body + "*" + nmea.Checksum(body)
}

// ParseTDA parses a single $UPTDA line.
func ParseTDA(line string) (position.Capture, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return position.Capture{}, err
	}
	m, ok := s.(TDA)
	if !ok {
		return position.Capture{}, fmt.Errorf("not a %s%s sentence: %s", TalkerID, TypeTDA, s.Prefix())
	}
	return m.Capture, nil
}
