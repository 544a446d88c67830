package wifi

// Quality maps a signal strength in dBm onto a 0-100 percentage. It is linear
// between -100 dBm and -50 dBm and clamped outside that range.
func Quality(rssi int) int {
	switch {
	case rssi <= -100:
		return 0
	case rssi >= -50:
		return 100
	default:
		return 2 * (rssi + 100)
	}
}
