package imu

// IMURaw represents a single raw IMU+mag sample as published on MQTT.
type IMURaw struct {
	Source string `json:"source"` // "left" or "right"

	// Producer timestamp, nanoseconds since the Unix epoch. Zero when unknown.
	TimestampNs int64 `json:"ts_ns,omitempty"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer, µT×10
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// IMURawSource is anything that can deliver raw samples one at a time.
type IMURawSource interface {
	NextRaw() (IMURaw, error)
}

// Full-scale sensitivities of the MPU9250, indexed by range code.
var (
	accelLSBPerG   = [4]float64{16384, 8192, 4096, 2048}
	gyroLSBPerDegS = [4]float64{131, 65.5, 32.8, 16.4}
)

const (
	standardGravity = 9.80665
	degToRad        = 0.017453292519943295
)

// Scale converts raw counts into SI units.
// AccelRange and GyroRange use the same 0-3 codes as IMU_ACCEL_RANGE and IMU_GYRO_RANGE.
type Scale struct {
	AccelRange byte
	GyroRange  byte
}

// Sample converts a raw reading into a combined sample in SI units:
// specific force in m/s², angular rate in rad/s and magnetic flux density in T.
func (s Scale) Sample(r IMURaw, timeInterval float64) TimedSample {
	a := standardGravity / accelLSBPerG[s.AccelRange&3]
	g := degToRad / gyroLSBPerDegS[s.GyroRange&3]
	const m = 1e-7 // µT×10 → T

	return TimedSample{
		Accel: Triad{X: float64(r.Ax) * a, Y: float64(r.Ay) * a, Z: float64(r.Az) * a},
		Gyro:  Triad{X: float64(r.Gx) * g, Y: float64(r.Gy) * g, Z: float64(r.Gz) * g},
		Mag:   Triad{X: float64(r.Mx) * m, Y: float64(r.My) * m, Z: float64(r.Mz) * m},

		TimeInterval: timeInterval,
	}
}
