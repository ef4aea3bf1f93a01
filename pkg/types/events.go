package types

import (
	"encoding/json"
	"time"
)

type ReadingReceived struct {
	PondID    uint          `json:"pondId"`
	Reading   SensorReading `json:"reading"`
	Timestamp time.Time     `json:"timestamp"`
}

func (r *ReadingReceived) ContentType() string {
	return "application/json"
}
func (r *ReadingReceived) TopicName() string {
	return "pond.readingReceived"
}
func (r *ReadingReceived) Body() []byte {
	b, _ := json.Marshal(r)
	return b
}

type ActuatorChanged struct {
	Actuator  Actuator  `json:"actuator"`
	Reason    string    `json:"reason,omitempty"`
	Simulated bool      `json:"simulated,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *ActuatorChanged) ContentType() string {
	return "application/json"
}
func (a *ActuatorChanged) TopicName() string {
	return "pond.actuatorChanged"
}
func (a *ActuatorChanged) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}

type PondNotObserved struct {
	PondID     uint      `json:"pondId"`
	LastSeen   time.Time `json:"lastSeen"`
	ObservedAt time.Time `json:"observedAt"`
}

func (p *PondNotObserved) ContentType() string {
	return "application/json"
}
func (p *PondNotObserved) TopicName() string {
	return "watchdog.pondNotObserved"
}
func (p *PondNotObserved) Body() []byte {
	b, _ := json.Marshal(p)
	return b
}

type AlarmCreated struct {
	Alarm     Alarm     `json:"alarm"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlarmCreated) ContentType() string {
	return "application/json"
}
func (a *AlarmCreated) TopicName() string {
	return "alarms.alarmCreated"
}
func (a *AlarmCreated) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}

type AlarmClosed struct {
	ID        string    `json:"id"`
	PondID    uint      `json:"pondId"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlarmClosed) ContentType() string {
	return "application/json"
}
func (a *AlarmClosed) TopicName() string {
	return "alarms.alarmClosed"
}
func (a *AlarmClosed) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}
