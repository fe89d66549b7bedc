// Package meter aggregates P1 readings into the hourly and daily data sets
// served by the data endpoint.
package meter

import "time"

const (
	hoursPerDay     = 24
	lastHourSamples = 360

	// TimestampLayout is the layout of State.Timestamp.
	TimestampLayout = "2006-01-02 15:04:05"

	// MainSet holds the running state and is rewritten on every telegram.
	MainSet = "data_0_0"
	// PrimarySet holds only the latest raw meter values.
	PrimarySet = "p1"
)

// State is the JSON document written to the data directory. Fields are
// declared in key order so the encoded output is sorted. Null list entries
// mean no sample was taken for that slot.
type State struct {
	EDayMax            *int64   `json:"eDayMax"`
	EDayMin            *int64   `json:"eDayMin"`
	EHourlyMaxList     []*int64 `json:"eHourlyMaxList"`
	EHourlyMinList     []*int64 `json:"eHourlyMinList"`
	EHourlyTotalList   []*int64 `json:"eHourlyTotalList"`
	ELastHourList      []*int64 `json:"eLastHourList,omitempty"`
	ENow               *int64   `json:"eNow"`
	ETotal             int64    `json:"eTotal"`
	ETotalOffPeak      int64    `json:"eTotalOffPeak"`
	ETotalPeak         int64    `json:"eTotalPeak"`
	GasHourlyTotalList []*int64 `json:"gasHourlyTotalList,omitempty"`
	GasTotal           *int64   `json:"gasTotal,omitempty"`
	Timestamp          *string  `json:"timestamp"`
}

// Primary is the small document with the latest meter values only.
type Primary struct {
	ENow          int64  `json:"eNow"`
	ETotalOffPeak int64  `json:"eTotalOffPeak"`
	ETotalPeak    int64  `json:"eTotalPeak"`
	GasTotal      *int64 `json:"gasTotal,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func newState() *State {
	return &State{
		EHourlyMaxList:   make([]*int64, hoursPerDay),
		EHourlyMinList:   make([]*int64, hoursPerDay),
		EHourlyTotalList: make([]*int64, hoursPerDay+1),
		ELastHourList:    make([]*int64, lastHourSamples),
	}
}

// clone copies the lists; list entries point at values that are never
// mutated, so they can be shared.
func (s *State) clone() *State {
	out := *s
	out.EHourlyMaxList = cloneList(s.EHourlyMaxList)
	out.EHourlyMinList = cloneList(s.EHourlyMinList)
	out.EHourlyTotalList = cloneList(s.EHourlyTotalList)
	out.ELastHourList = cloneList(s.ELastHourList)
	out.GasHourlyTotalList = cloneList(s.GasHourlyTotalList)
	return &out
}

// normalize resizes lists loaded from an older or damaged file.
func (s *State) normalize() {
	s.EHourlyMaxList = resize(s.EHourlyMaxList, hoursPerDay)
	s.EHourlyMinList = resize(s.EHourlyMinList, hoursPerDay)
	s.EHourlyTotalList = resize(s.EHourlyTotalList, hoursPerDay+1)
	s.ELastHourList = resize(s.ELastHourList, lastHourSamples)
	if s.GasHourlyTotalList != nil {
		s.GasHourlyTotalList = resize(s.GasHourlyTotalList, hoursPerDay+1)
	}
}

func cloneList(in []*int64) []*int64 {
	if in == nil {
		return nil
	}
	out := make([]*int64, len(in))
	copy(out, in)
	return out
}

func resize(in []*int64, n int) []*int64 {
	out := make([]*int64, n)
	copy(out, in)
	return out
}

func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

func ptr(v int64) *int64 {
	return &v
}

func minPtr(cur *int64, v int64) *int64 {
	if cur == nil || v < *cur {
		return ptr(v)
	}
	return cur
}

func maxPtr(cur *int64, v int64) *int64 {
	if cur == nil || v > *cur {
		return ptr(v)
	}
	return cur
}
