// Package events defines the closed message vocabulary exchanged between actors.
package events

import (
	"fmt"
	"math"
)

// EventID identifies the category of a message.
type EventID int16

// Event categories.
const (
	EventNull    EventID = 0
	EventGpioISR EventID = 10
	EventSystem  EventID = 11
	EventApp     EventID = 100
)

// String returns a readable name for the event category.
func (e EventID) String() string {
	switch e {
	case EventNull:
		return "null"
	case EventGpioISR:
		return "gpio_isr"
	case EventSystem:
		return "system"
	case EventApp:
		return "app"
	default:
		return fmt.Sprintf("event(%d)", int16(e))
	}
}

// SystemTrigger is the IParam subtype of an EventSystem message.
type SystemTrigger int32

// System triggers.
const (
	SysInitDone SystemTrigger = iota
	SysSoftwareTimer          // LParam = timer id
	SysVbusDetect
	SysLowBattery
	SysButtonClick
	SysButtonDoubleClick
	SysButtonLongPress
	SysSerial
	SysEthIf // LParam = packed interrupt word, see DecodeInterrupts
)

var systemTriggerNames = [...]string{
	"init_done", "software_timer", "vbus_detect", "low_battery",
	"button_click", "button_double_click", "button_long_press", "serial", "eth_if",
}

func (t SystemTrigger) String() string {
	if t >= 0 && int(t) < len(systemTriggerNames) {
		return systemTriggerNames[t]
	}
	return fmt.Sprintf("system_trigger(%d)", int32(t))
}

// AppTrigger is the IParam subtype of an EventApp message.
type AppTrigger int32

// Application triggers.
const (
	AppNull AppTrigger = iota
	AppLinkUp
	AppLinkDown
	// AppInference carries the prediction as float32 bits in LParam (audio to app)
	// or an InferenceState in UParam (app to net).
	AppInference
	// AppAlertState carries a delivery report in UParam.
	AppAlertState
)

var appTriggerNames = [...]string{"null", "link_up", "link_down", "inference", "alert_state"}

func (t AppTrigger) String() string {
	if t >= 0 && int(t) < len(appTriggerNames) {
		return appTriggerNames[t]
	}
	return fmt.Sprintf("app_trigger(%d)", int32(t))
}

// Timer identifiers carried in LParam of SysSoftwareTimer.
const (
	Timer1Hz uint32 = 1
)

// InferenceState is the alarm state reported from the app actor to the net actor.
type InferenceState uint32

// Inference states.
const (
	InferenceUnknown InferenceState = iota
	InferenceReady
	InferenceAlarmOn
	InferenceAlarmOff
)

func (s InferenceState) String() string {
	switch s {
	case InferenceReady:
		return "ready"
	case InferenceAlarmOn:
		return "alarm_on"
	case InferenceAlarmOff:
		return "alarm_off"
	default:
		return "unknown"
	}
}

// Message is the fixed-size value copied into a mailbox.
type Message struct {
	Event  EventID
	IParam int32
	UParam uint32
	LParam uint32
}

// System builds an EventSystem message.
func System(trigger SystemTrigger, uParam, lParam uint32) Message {
	return Message{Event: EventSystem, IParam: int32(trigger), UParam: uParam, LParam: lParam}
}

// App builds an EventApp message.
func App(trigger AppTrigger, uParam, lParam uint32) Message {
	return Message{Event: EventApp, IParam: int32(trigger), UParam: uParam, LParam: lParam}
}

// Inference builds the audio to app message carrying a prediction.
func Inference(probability float32) Message {
	return App(AppInference, 0, Float32ToBits(probability))
}

// AlarmState builds the app to net message carrying an alarm transition.
func AlarmState(state InferenceState) Message {
	return App(AppInference, uint32(state), 0)
}

// SystemTrigger returns IParam interpreted as a system trigger.
func (m Message) SystemTrigger() SystemTrigger { return SystemTrigger(m.IParam) }

// AppTrigger returns IParam interpreted as an application trigger.
func (m Message) AppTrigger() AppTrigger { return AppTrigger(m.IParam) }

// Probability returns LParam reinterpreted as a float32.
func (m Message) Probability() float32 { return Float32FromBits(m.LParam) }

// InferenceState returns UParam interpreted as an alarm state.
func (m Message) InferenceState() InferenceState { return InferenceState(m.UParam) }

// Float32ToBits reinterprets a float32 as its IEEE-754 bit pattern.
func Float32ToBits(f float32) uint32 { return math.Float32bits(f) }

// Float32FromBits reinterprets an IEEE-754 bit pattern as a float32.
func Float32FromBits(b uint32) float32 { return math.Float32frombits(b) }
