package readiness

// Status is the lifecycle of a single system check.
type Status string

const (
	StatusPending  Status = "pending"
	StatusChecking Status = "checking"
	StatusPassed   Status = "passed"
	StatusWarning  Status = "warning"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the check has settled.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusWarning || s == StatusFailed
}

// CheckID names one of the fixed checks in run order.
type CheckID string

const (
	CheckBrowser    CheckID = "browser"
	CheckNetwork    CheckID = "network"
	CheckMicrophone CheckID = "microphone"
	CheckAudio      CheckID = "audio"
)

// SystemCheck is the externally visible state of one check.
type SystemCheck struct {
	ID          CheckID
	Name        string
	Description string
	Status      Status
	Err         *CheckError
}

func initialChecks() []SystemCheck {
	return []SystemCheck{
		{
			ID:          CheckBrowser,
			Name:        "Browser compatibility",
			Description: "Verifies the browser supports real-time audio capture",
			Status:      StatusPending,
		},
		{
			ID:          CheckNetwork,
			Name:        "Network connection",
			Description: "Verifies the platform is reachable and the connection is fast enough",
			Status:      StatusPending,
		},
		{
			ID:          CheckMicrophone,
			Name:        "Microphone access",
			Description: "Verifies a microphone is present and permission is granted",
			Status:      StatusPending,
		},
		{
			ID:          CheckAudio,
			Name:        "Audio level",
			Description: "Samples the microphone to confirm it picks up sound",
			Status:      StatusPending,
		},
	}
}
