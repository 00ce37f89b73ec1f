package transport

import "fmt"

// FirmwareProfile captures the per-firmware conventions the harness
// must honor when interpreting telemetry. The deployed firmware
// variants disagree on the angle-correction sign and on the left-motor
// trim, so each is a distinct named profile rather than a unified
// guess.
type FirmwareProfile struct {
	Name string
	// AngleSign is multiplied into every raw sample before wrapping
	AngleSign float64
	// LeftMotorTrim is the PWM bias the firmware applies to the left
	// motor. Recorded for run provenance; the correction itself runs
	// on the controller.
	LeftMotorTrim float64
}

var firmwareProfiles = map[string]FirmwareProfile{
	"rev-a": {Name: "rev-a", AngleSign: 1, LeftMotorTrim: 0},
	"rev-b": {Name: "rev-b", AngleSign: -1, LeftMotorTrim: -60},
}

// LookupFirmware resolves a configured firmware profile name
func LookupFirmware(name string) (FirmwareProfile, error) {
	p, ok := firmwareProfiles[name]
	if !ok {
		return FirmwareProfile{}, fmt.Errorf("transport: unknown firmware profile %q", name)
	}
	return p, nil
}
