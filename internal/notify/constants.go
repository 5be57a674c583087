package notify

import "time"

// AppName identifies the service in outbound requests.
const AppName = "zwfm-alarmwatch"

// Alert endpoint defaults.
const (
	DefaultHost = "api.callmebot.com"
	DefaultPort = 80
	DefaultPath = "/whatsapp.php?phone=%s&apikey=%s&text="

	// DefaultTimeoutTicks bounds each connection phase, counted in Update calls.
	DefaultTimeoutTicks = 30
	// DefaultRxBufferSize is the response chunk buffer; longer chunks are truncated.
	DefaultRxBufferSize = 1024
	// DefaultMaxRequestPath bounds the request target including the escaped text.
	DefaultMaxRequestPath = 256

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Alert texts sent on alarm transitions.
const (
	TextAlarmOn  = "alarm sound detected"
	TextAlarmOff = "no alarm"
)
