package meter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joshp123/smartmeter/internal/p1"
)

// Kind identifies what an Output holds and where it is written.
type Kind int

const (
	KindMain Kind = iota
	KindPrimary
	KindHourly
	KindDaily
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindPrimary:
		return "primary"
	case KindHourly:
		return "hourly"
	case KindDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// Output is a document produced by Update. Name is the data set name,
// without directory or ".json".
type Output struct {
	Kind  Kind
	Name  string
	Value any
}

// Meter tracks the running day. It is not safe for concurrent use.
type Meter struct {
	state      *State
	day        int
	hour       int
	gasPresent bool
}

// New starts an empty day at now.
func New(now time.Time) *Meter {
	return &Meter{
		state: newState(),
		day:   isoWeekday(now),
		hour:  now.Hour(),
	}
}

// Restore resumes from a previously written main data set. The current day
// and hour are taken from its timestamp.
func Restore(data []byte) (*Meter, error) {
	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Timestamp == nil {
		return nil, fmt.Errorf("state has no timestamp")
	}
	ts, err := time.ParseInLocation(TimestampLayout, *state.Timestamp, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse state timestamp: %w", err)
	}
	state.normalize()

	return &Meter{
		state:      state,
		day:        isoWeekday(ts),
		hour:       ts.Hour(),
		gasPresent: state.GasHourlyTotalList != nil,
	}, nil
}

// State returns a copy of the running state.
func (m *Meter) State() *State {
	return m.state.clone()
}

// Update folds a reading taken at now into the state and returns the
// documents to persist, in write order. Leaving an hour emits the hourly
// snapshot; leaving hour 23 also emits the daily snapshot for the day
// that just ended.
func (m *Meter) Update(now time.Time, r p1.Reading) []Output {
	s := m.state
	eNow := r.PowerW
	eTotal := r.ImportWh()

	s.ENow = ptr(eNow)
	s.ETotal = eTotal
	s.ETotalOffPeak = r.ImportOffPeakWh
	s.ETotalPeak = r.ImportPeakWh
	if r.GasDm3 != nil {
		if !m.gasPresent {
			m.gasPresent = true
			s.GasHourlyTotalList = make([]*int64, hoursPerDay+1)
		}
		s.GasTotal = ptr(*r.GasDm3)
	}
	copy(s.ELastHourList, s.ELastHourList[1:])
	s.ELastHourList[len(s.ELastHourList)-1] = ptr(eNow)

	var outputs []Output
	if now.Hour() == m.hour {
		s.EHourlyMinList[m.hour] = minPtr(s.EHourlyMinList[m.hour], eNow)
		s.EHourlyMaxList[m.hour] = maxPtr(s.EHourlyMaxList[m.hour], eNow)
	} else {
		dayChanged := isoWeekday(now) != m.day
		if dayChanged {
			s.EHourlyTotalList[hoursPerDay] = ptr(eTotal)
			if m.gasPresent {
				s.GasHourlyTotalList[hoursPerDay] = s.GasTotal
			}
		}

		outputs = append(outputs, Output{
			Kind:  KindHourly,
			Name:  fmt.Sprintf("data_%d_%d", m.day, m.hour+1),
			Value: s.clone(),
		})

		if m.hour == hoursPerDay-1 {
			daily := s.clone()
			daily.ELastHourList = nil
			outputs = append(outputs, Output{
				Kind:  KindDaily,
				Name:  "data_" + now.AddDate(0, 0, -1).Format("2006_01_02"),
				Value: daily,
			})
		}

		if dayChanged {
			s.EHourlyMinList = make([]*int64, hoursPerDay)
			s.EHourlyMaxList = make([]*int64, hoursPerDay)
			s.EHourlyTotalList = make([]*int64, hoursPerDay+1)
			if m.gasPresent {
				s.GasHourlyTotalList = make([]*int64, hoursPerDay+1)
			}
			s.EDayMin = ptr(eNow)
			s.EDayMax = ptr(eNow)
			m.day = isoWeekday(now)
		}

		m.hour = now.Hour()
		s.EHourlyMinList[m.hour] = ptr(eNow)
		s.EHourlyMaxList[m.hour] = ptr(eNow)
		s.EHourlyTotalList[m.hour] = ptr(eTotal)
		if m.gasPresent {
			s.GasHourlyTotalList[m.hour] = s.GasTotal
		}
	}

	s.EDayMin = minPtr(s.EDayMin, eNow)
	s.EDayMax = maxPtr(s.EDayMax, eNow)
	ts := now.Format(TimestampLayout)
	s.Timestamp = &ts

	outputs = append(outputs,
		Output{Kind: KindMain, Name: MainSet, Value: s.clone()},
		Output{Kind: KindPrimary, Name: PrimarySet, Value: Primary{
			ENow:          eNow,
			ETotalOffPeak: r.ImportOffPeakWh,
			ETotalPeak:    r.ImportPeakWh,
			GasTotal:      r.GasDm3,
			Timestamp:     ts,
		}},
	)
	return outputs
}
