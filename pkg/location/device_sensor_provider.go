package location

import (
	"bufio"
	"errors"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// knots → metres per second, the unit the collector stores speed in.
const knotsToMetersPerSecond = 0.514444

// maxSentencesPerFix bounds how many NMEA lines one GetLocation call will
// consume while waiting for a usable GGA sentence.
const maxSentencesPerFix = 64

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// GetLocation reads GPS data from the device and returns the device's location.
// GGA sentences carry the fix, altitude and HDOP; an RMC sentence seen in the
// same window contributes speed and heading when the receiver reports them.
func (d *DeviceSensorProvider) GetLocation() (Location, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate}
	s, err := serial.OpenPort(c)
	if err != nil {
		return Location{}, err
	}
	defer s.Close() // Ensure the port is closed when done

	var speed, heading *float64

	scanner := bufio.NewScanner(s)
	for lines := 0; scanner.Scan() && lines < maxSentencesPerFix; lines++ {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue // Garbled sentences are common on serial GPS, skip them
		}

		switch parsed := sentence.(type) {
		case nmea.RMC:
			if parsed.Validity == "A" {
				v := parsed.Speed * knotsToMetersPerSecond
				speed = &v
				course := parsed.Course
				heading = &course
			}
		case nmea.GGA:
			if parsed.FixQuality == "0" {
				continue // No fix yet, keep reading
			}
			accuracy := float64(parsed.HDOP) // Use HDOP as a proxy for accuracy
			altitude := float64(parsed.Altitude)
			return Location{
				Latitude:  parsed.Latitude,
				Longitude: parsed.Longitude,
				Accuracy:  &accuracy,
				Altitude:  &altitude,
				Speed:     speed,
				Heading:   heading,
			}, nil
		}
	}

	// Check for any scanner errors
	if err := scanner.Err(); err != nil {
		return Location{}, err
	}

	return Location{}, errors.New("no valid GPS data found")
}

// Close releases the provider. The serial port is opened per read, so there is
// nothing to tear down.
func (d *DeviceSensorProvider) Close() error {
	return nil
}
