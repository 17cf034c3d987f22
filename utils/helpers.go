package utils

func IsValidFunnelEvent(event string) bool {
	switch event {
	case "visit", "start_click", "exit":
		return true
	default:
		return false
	}
}
