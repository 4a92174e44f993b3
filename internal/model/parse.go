package model

// ParseEventType resolves a canonical event type name. Returns
// EventTypeUnknown and false for names it does not know.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, t != EventTypeUnknown
		}
	}
	return EventTypeUnknown, false
}

// ParseStatType resolves a canonical stat type name.
func ParseStatType(name string) (StatType, bool) {
	for t, n := range statTypeNames {
		if n == name {
			return t, t != StatTypeUnknown
		}
	}
	return StatTypeUnknown, false
}
